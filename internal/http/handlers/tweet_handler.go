// Tweet HTTP handlers.
//
// Pages:
//   - GET /              list of tweets mentioning a keyword (?all=1: every tweet)
//   - GET /tweet/{id}/   one tweet
//
// JSON API (read-only):
//   - GET /tweets        list, weak ETag support
//   - GET /tweets/{id}   one tweet
//
// Handlers are transport-thin: they parse input, call the TweetService and
// translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/twola/internal/domain"
	"github.com/tbourn/twola/internal/services"
	"github.com/tbourn/twola/internal/sysutil"
)

// TweetService is the read side consumed by the handlers. Implementations
// must be safe for concurrent use and honor ctx.
type TweetService interface {
	// List returns tweets by descending score, optionally keyword-filtered.
	List(ctx context.Context, filterKeywords bool) ([]domain.Tweet, error)
	// Get returns the tweet with id; found is false when there is none.
	Get(ctx context.Context, id int64) (t *domain.Tweet, found bool, err error)
}

// Handlers groups the page and API endpoints.
type Handlers struct {
	svc      TweetService
	keywords []string
}

// New returns Handlers reading through svc. keywords are only displayed.
func New(svc TweetService, keywords []string) *Handlers {
	return &Handlers{svc: svc, keywords: keywords}
}

// TweetListResponse is the body of GET /tweets.
type TweetListResponse struct {
	Tweets   []domain.Tweet `json:"tweets"`
	Count    int            `json:"count" example:"1"`
	Filtered bool           `json:"filtered" example:"true"`
}

// parseFilter reads the filter query flag; absent means filtered.
func parseFilter(c *gin.Context) (bool, error) {
	raw, present := c.GetQuery("filter")
	if !present || raw == "" {
		return true, nil
	}
	return strconv.ParseBool(raw)
}

// ListTweets godoc
// @ID          listTweets
// @Summary     List tweets
// @Description Returns stored tweets by descending sentiment score. With filter=true (the default) only tweets mentioning a configured keyword are returned. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Tweets
// @Produce     json
//
// @Param       filter         query   bool    false "Keep only keyword matches"   default(true)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"tweets:true:1:3\")
//
// @Success     200  {object} handlers.TweetListResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tweets [get]
func (h *Handlers) ListTweets(c *gin.Context) {
	ctx := c.Request.Context()
	filter, err := parseFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "filter must be a boolean")
		return
	}

	tweets, err := h.svc.List(ctx, filter)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if tweets == nil {
		tweets = []domain.Tweet{}
	}

	etag := listETag(filter, tweets)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, TweetListResponse{Tweets: tweets, Count: len(tweets), Filtered: filter})
}

// listETag identifies a listing by the rows it holds. Tweets are
// insert-only, so (count, max id) changes whenever the rows do.
func listETag(filter bool, tweets []domain.Tweet) string {
	var maxID int64
	for _, t := range tweets {
		maxID = max(maxID, t.ID)
	}
	return fmt.Sprintf(`W/"tweets:%t:%d:%d"`, filter, len(tweets), maxID)
}

// GetTweet godoc
// @ID          getTweet
// @Summary     Get a tweet
// @Description Returns one stored tweet by its source id.
// @Tags        Tweets
// @Produce     json
//
// @Param       id  path  int  true  "Tweet id"  example(3)
//
// @Success     200  {object} domain.Tweet
// @Failure     400  {object} handlers.ErrorResponse "Invalid id"
// @Failure     404  {object} handlers.ErrorResponse "Tweet not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tweets/{id} [get]
func (h *Handlers) GetTweet(c *gin.Context) {
	id, err := services.ParseID(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tweet id must be an integer")
		return
	}
	t, found, err := h.svc.Get(c.Request.Context(), id)
	switch {
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	case !found:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "tweet not found")
	default:
		ok(c, http.StatusOK, t)
	}
}

// ListPage renders list.html. Tweets are keyword-filtered unless the all
// query flag is truthy.
func (h *Handlers) ListPage(c *gin.Context) {
	filter := !sysutil.IsTruthy(c.Query("all"))
	tweets, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		failPage(c, http.StatusInternalServerError, "Server error", "Tweets could not be loaded.", err)
		return
	}
	c.HTML(http.StatusOK, "list.html", gin.H{
		"tweets":   tweets,
		"filtered": filter,
		"keywords": h.keywords,
	})
}

// TweetPage renders tweet.html. Unknown and malformed ids both get the 404
// page.
func (h *Handlers) TweetPage(c *gin.Context) {
	id, err := services.ParseID(c.Param("id"))
	if errors.Is(err, services.ErrInvalidID) {
		failPage(c, http.StatusNotFound, "Not found", "No such tweet.", nil)
		return
	}
	t, found, err := h.svc.Get(c.Request.Context(), id)
	switch {
	case err != nil:
		failPage(c, http.StatusInternalServerError, "Server error", "The tweet could not be loaded.", err)
	case !found:
		failPage(c, http.StatusNotFound, "Not found", "No such tweet.", nil)
	default:
		c.HTML(http.StatusOK, "tweet.html", gin.H{"tweet": t})
	}
}
