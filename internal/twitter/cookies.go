package twitter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// CookieJar is implemented by providers whose session lives in cookies.
type CookieJar interface {
	GetCookies() []*http.Cookie
	SetCookies(cookies []*http.Cookie)
}

func SaveCookies(jar CookieJar, cookieFile string) error {
	cookies := jar.GetCookies()
	logrus.Debugf("Got %d cookies to save", len(cookies))

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("error marshaling cookies: %w", err)
	}

	if dir := filepath.Dir(cookieFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating cookie dir: %w", err)
		}
	}

	logrus.Debugf("Writing cookies to file: %s", cookieFile)
	if err = os.WriteFile(cookieFile, data, 0o600); err != nil {
		return fmt.Errorf("error saving cookies: %w", err)
	}
	logrus.Debug("Successfully saved cookies")
	return nil
}

func LoadCookies(jar CookieJar, cookieFile string) error {
	logrus.Debugf("Loading cookies from file: %s", cookieFile)
	data, err := os.ReadFile(cookieFile)
	if err != nil {
		return fmt.Errorf("error reading cookies file: %w", err)
	}

	var cookies []*http.Cookie
	if err = json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("error unmarshaling cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("cookies file %s is empty", cookieFile)
	}
	logrus.Debugf("Loaded %d cookies", len(cookies))
	jar.SetCookies(cookies)
	return nil
}
