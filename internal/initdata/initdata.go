// Package initdata parses and verifies the signed init payload the Telegram host hands to a mini app
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/models"
)

// Data is the useful part of init payload
type Data struct {
	QueryID  string
	User     models.User
	AuthDate time.Time
	Hash     string
}

// Parse decodes payload without checking its signature
func Parse(raw string) (Data, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Data{}, fmt.Errorf("%w: %w", apperrors.ErrInitDataInvalid, err)
	}

	var d Data
	d.QueryID = values.Get("query_id")
	d.Hash = values.Get("hash")

	userJSON := values.Get("user")
	if userJSON == "" {
		return Data{}, fmt.Errorf("%w: user is missing", apperrors.ErrInitDataInvalid)
	}
	if err := json.Unmarshal([]byte(userJSON), &d.User); err != nil {
		return Data{}, fmt.Errorf("%w: user is malformed: %w", apperrors.ErrInitDataInvalid, err)
	}
	if d.User.ID == 0 {
		return Data{}, fmt.Errorf("%w: user id is missing", apperrors.ErrInitDataInvalid)
	}

	if authDate := values.Get("auth_date"); authDate != "" {
		sec, err := strconv.ParseInt(authDate, 10, 64)
		if err != nil {
			return Data{}, fmt.Errorf("%w: auth_date is malformed", apperrors.ErrInitDataInvalid)
		}
		d.AuthDate = time.Unix(sec, 0)
	}

	return d, nil
}

// Validate checks the signature made with bot token and the payload age, maxAge 0 disables age check
func Validate(raw string, botToken string, maxAge time.Duration, now time.Time) (Data, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Data{}, fmt.Errorf("%w: %w", apperrors.ErrInitDataInvalid, err)
	}

	got, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(got) == 0 {
		return Data{}, fmt.Errorf("%w: hash is missing", apperrors.ErrInitDataInvalid)
	}
	if !hmac.Equal(got, signature(values, botToken)) {
		return Data{}, fmt.Errorf("%w: signature mismatch", apperrors.ErrInitDataInvalid)
	}

	d, err := Parse(raw)
	if err != nil {
		return Data{}, err
	}
	if maxAge > 0 && (d.AuthDate.IsZero() || now.Sub(d.AuthDate) > maxAge) {
		return Data{}, fmt.Errorf("%w: payload is outdated", apperrors.ErrInitDataInvalid)
	}

	return d, nil
}

// Sign builds signed payload for the user, the way the host does it
func Sign(user models.User, queryID string, authDate time.Time, botToken string) (string, error) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("failed to encode user: %w", err)
	}

	values := url.Values{}
	values.Set("user", string(userJSON))
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	if queryID != "" {
		values.Set("query_id", queryID)
	}
	values.Set("hash", hex.EncodeToString(signature(values, botToken)))

	return values.Encode(), nil
}

// signature is HMAC-SHA256 of sorted "key=value" lines keyed by HMAC("WebAppData", botToken)
func signature(values url.Values, botToken string) []byte {
	pairs := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return mac.Sum(nil)
}
