package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/scheduler"
	"github.com/masa-finance/timeline-poller/internal/store"
	"github.com/masa-finance/timeline-poller/internal/tweets"
	"github.com/masa-finance/timeline-poller/internal/twitter"
)

// errorStatus maps the error taxonomy onto HTTP status codes.
func errorStatus(err error) (int, string) {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "not_found"
	}
	kind := twitter.KindOf(err)
	switch kind {
	case twitter.KindRateLimited:
		return http.StatusTooManyRequests, kind.String()
	case twitter.KindAuthenticationFailed:
		return http.StatusUnauthorized, kind.String()
	case twitter.KindClient:
		return http.StatusBadRequest, kind.String()
	case twitter.KindTransient:
		return http.StatusServiceUnavailable, kind.String()
	case twitter.KindMockDisabled:
		return http.StatusForbidden, kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "cancelled"
	}
	return http.StatusInternalServerError, ""
}

func respondError(c echo.Context, err error) error {
	code, kind := errorStatus(err)
	entry := logrus.WithError(err).WithField("path", c.Path())
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	return c.JSON(code, types.ErrorResponse{Error: err.Error(), Kind: kind})
}

func postsResponse(c echo.Context, posts []types.Post) error {
	if posts == nil {
		posts = []types.Post{}
	}
	return c.JSON(http.StatusOK, types.PostsResponse{Count: len(posts), Posts: posts})
}

func searchTweets(svc *tweets.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := types.SearchRequest{}
		if err := c.Bind(&req); err != nil {
			return err
		}
		posts, err := svc.Search(c.Request().Context(), req.Query, req.MinimumTweets)
		if err != nil {
			return respondError(c, err)
		}
		return postsResponse(c, posts)
	}
}

func followingTimeline(svc *tweets.Service) echo.HandlerFunc {
	return timeline(svc.FollowingTimeline)
}

func recommendedTimeline(svc *tweets.Service) echo.HandlerFunc {
	return timeline(svc.RecommendedTimeline)
}

func timeline(fetch func(context.Context, int) ([]types.Post, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := types.TimelineRequest{}
		if err := c.Bind(&req); err != nil {
			return err
		}
		posts, err := fetch(c.Request().Context(), req.MinimumTweets)
		if err != nil {
			return respondError(c, err)
		}
		return postsResponse(c, posts)
	}
}

func favoriteTweet(svc *tweets.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("tweet_id")
		if err := svc.Favorite(c.Request().Context(), id); err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, types.StatusResponse{
			Status:  "success",
			Message: "Tweet favorited",
			TweetID: id,
		})
	}
}

func tweetThread(svc *tweets.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		thread, err := svc.Thread(c.Request().Context(), c.Param("tweet_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, thread)
	}
}

func createTweet(svc *tweets.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := types.CreatePostRequest{}
		if err := c.Bind(&req); err != nil {
			return err
		}
		details, err := svc.CreatePost(c.Request().Context(), req.Text, req.ReplyTo)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, details)
	}
}

func recentTweets(svc *tweets.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 0
		if s := c.QueryParam("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return respondError(c, twitter.NewClientError("limit must be a positive integer"))
			}
			limit = n
		}
		posts, err := svc.Recent(c.Request().Context(), limit)
		if err != nil {
			return respondError(c, err)
		}
		return postsResponse(c, posts)
	}
}

func getTweet(svc *tweets.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		post, err := svc.Get(c.Request().Context(), c.Param("tweet_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, post)
	}
}

func notification(svc *tweets.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload := types.NotificationPayload{}
		if err := c.Bind(&payload); err != nil {
			return err
		}
		res, err := svc.ProcessNotification(c.Request().Context(), payload)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func startScheduler(s *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := types.SchedulerRequest{}
		if err := c.Bind(&req); err != nil {
			return err
		}
		if req.MinimumTweets < 0 {
			return respondError(c, twitter.NewClientError("minimum_tweets must not be negative"))
		}
		if !s.Start(req.MinimumTweets) {
			return c.JSON(http.StatusConflict, types.StatusResponse{Status: "error", Message: "Scheduler already running"})
		}
		return c.JSON(http.StatusOK, types.StatusResponse{Status: "success", Message: "Scheduler started"})
	}
}

func stopScheduler(s *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Stop() {
			return c.JSON(http.StatusConflict, types.StatusResponse{Status: "error", Message: "Scheduler not running"})
		}
		return c.JSON(http.StatusOK, types.StatusResponse{Status: "success", Message: "Scheduler stopped"})
	}
}

func configureScheduler(s *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := types.SchedulerRequest{}
		if err := c.Bind(&req); err != nil {
			return err
		}
		if err := s.SetMinimumTweets(req.MinimumTweets); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, scheduler.ErrRunning) {
				code = http.StatusConflict
			}
			return c.JSON(code, types.StatusResponse{Status: "error", Message: err.Error()})
		}
		return c.JSON(http.StatusOK, s.Status())
	}
}

func schedulerStatus(s *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.Status())
	}
}
