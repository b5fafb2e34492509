package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ProfileSchemaVersion is written on every users/{id} record created by this
// service. Records without the field predate the request sets; they decode
// with empty sets.
const ProfileSchemaVersion = 2

// DecodeUserProfile turns a raw users/{id} record into a UserProfile. It never
// fails: missing or mistyped fields fall back to their zero value so that old
// records stay readable.
func DecodeUserProfile(id string, raw map[string]any) UserProfile {
	u := UserProfile{
		ID:                     id,
		Username:               stringField(raw, FieldUsername),
		Email:                  stringField(raw, FieldEmail),
		CreatedAt:              timeField(raw, FieldCreatedAt),
		Friends:                stringsField(raw, FieldFriends),
		SentFriendRequests:     stringsField(raw, FieldSentFriendRequests),
		ReceivedFriendRequests: stringsField(raw, FieldReceivedFriendRequests),
		CurrentVibe:            stringField(raw, FieldCurrentVibe),
	}
	if t := timeField(raw, FieldVibeGeneratedAt); !t.IsZero() {
		u.VibeGeneratedAt = &t
	}
	return u
}

// EncodeUserProfile is the inverse of DecodeUserProfile.
func EncodeUserProfile(u UserProfile) map[string]any {
	m := map[string]any{
		FieldUsername:               u.Username,
		FieldEmail:                  u.Email,
		FieldCreatedAt:              u.CreatedAt,
		FieldFriends:                nonNil(u.Friends),
		FieldSentFriendRequests:     nonNil(u.SentFriendRequests),
		FieldReceivedFriendRequests: nonNil(u.ReceivedFriendRequests),
		FieldSchemaVersion:          ProfileSchemaVersion,
	}
	if u.CurrentVibe != "" {
		m[FieldCurrentVibe] = u.CurrentVibe
	}
	if u.VibeGeneratedAt != nil {
		m[FieldVibeGeneratedAt] = *u.VibeGeneratedAt
	}
	return m
}

// DecodeReadingEntry turns a raw books/{id} record into a ReadingEntry,
// defaulting every missing field.
func DecodeReadingEntry(id string, raw map[string]any) ReadingEntry {
	e := ReadingEntry{
		ID:              id,
		OwnerID:         stringField(raw, FieldUserID),
		Title:           stringField(raw, FieldTitle),
		Author:          stringField(raw, FieldAuthor),
		Tags:            stringsField(raw, FieldTags),
		CreatedAt:       timeField(raw, FieldCreatedAt),
		BookDescription: stringField(raw, FieldBookDescription),
		CoverImageURL:   stringField(raw, FieldCoverImageURL),
		ISBN:            stringField(raw, FieldISBN),
		PublishedDate:   stringField(raw, FieldPublishedDate),
		Publisher:       stringField(raw, FieldPublisher),
		GoogleBooksID:   stringField(raw, FieldGoogleBooksID),
		Review:          stringField(raw, FieldReview),
	}
	if n, ok := intField(raw, FieldPageCount); ok {
		e.PageCount = &n
	}
	if t := timeField(raw, FieldDateRead); !t.IsZero() {
		e.DateRead = &t
	}
	return e
}

// EncodeReadingEntry omits empty optional fields, matching what the mobile
// clients have always written.
func EncodeReadingEntry(e ReadingEntry) map[string]any {
	m := map[string]any{
		FieldUserID:    e.OwnerID,
		FieldTitle:     e.Title,
		FieldAuthor:    e.Author,
		FieldTags:      nonNil(e.Tags),
		FieldCreatedAt: e.CreatedAt,
	}
	optional := map[string]string{
		FieldBookDescription: e.BookDescription,
		FieldCoverImageURL:   e.CoverImageURL,
		FieldISBN:            e.ISBN,
		FieldPublishedDate:   e.PublishedDate,
		FieldPublisher:       e.Publisher,
		FieldGoogleBooksID:   e.GoogleBooksID,
		FieldReview:          e.Review,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	if e.PageCount != nil {
		m[FieldPageCount] = int64(*e.PageCount)
	}
	if e.DateRead != nil {
		m[FieldDateRead] = *e.DateRead
	}
	return m
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}

func stringsField(raw map[string]any, key string) []string {
	out := []string{}
	switch v := raw[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func intField(raw map[string]any, key string) (int, bool) {
	switch v := raw[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// timeField accepts native timestamps as well as the RFC 3339 strings the
// jsonb backend stores.
func timeField(raw map[string]any, key string) time.Time {
	switch v := raw[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
