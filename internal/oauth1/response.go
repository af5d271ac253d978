package oauth1

import (
	"strconv"
	"time"

	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

const (
	paramScreenName = "screen_name"
	paramUserID     = "user_id"
)

// ParseAuthResponse parses a form-encoded request_token or access_token
// body. It returns nil when oauth_token or oauth_token_secret is missing
// or empty. screen_name and user_id are optional; an absent or malformed
// user_id yields 0.
func ParseAuthResponse(body string) *models.OAuthResponse {
	params := urlcodec.QueryParams(body, false)

	token := params[ParamToken]
	secret := params[ParamTokenSecret]

	if token == "" || secret == "" {
		return nil
	}

	var userID int64
	if raw, ok := params[paramUserID]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			userID = id
		}
	}

	return &models.OAuthResponse{
		Token: models.UserToken{
			Token:     token,
			Secret:    secret,
			CreatedAt: time.Now(),
		},
		UserName: params[paramScreenName],
		UserID:   userID,
	}
}
