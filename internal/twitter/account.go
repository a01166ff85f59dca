package twitter

import "fmt"

// Credentials identify the single account the poller acts as.
type Credentials struct {
	Username string
	Email    string
	Password string
}

func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("twitter credentials incomplete: username and password are required")
	}
	return nil
}

func (c Credentials) String() string {
	return c.Username
}
