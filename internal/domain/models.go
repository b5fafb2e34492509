package domain

import (
	"slices"
	"time"
)

const (
	CollectionUsers = "users"
	CollectionBooks = "books"
)

// users/{id} fields.
const (
	FieldUsername               = "username"
	FieldEmail                  = "email"
	FieldCreatedAt              = "createdAt"
	FieldFriends                = "friends"
	FieldSentFriendRequests     = "sentFriendRequests"
	FieldReceivedFriendRequests = "receivedFriendRequests"
	FieldCurrentVibe            = "currentVibe"
	FieldVibeGeneratedAt        = "vibeGeneratedAt"
	FieldSchemaVersion          = "schemaVersion"
)

// books/{id} fields.
const (
	FieldUserID          = "userId"
	FieldTitle           = "title"
	FieldAuthor          = "author"
	FieldTags            = "tags"
	FieldBookDescription = "bookDescription"
	FieldCoverImageURL   = "coverImageURL"
	FieldISBN            = "isbn"
	FieldPageCount       = "pageCount"
	FieldPublishedDate   = "publishedDate"
	FieldPublisher       = "publisher"
	FieldGoogleBooksID   = "googleBooksId"
	FieldDateRead        = "dateRead"
	FieldReview          = "review"
)

type UserProfile struct {
	ID                     string     `json:"id"`
	Username               string     `json:"username"`
	Email                  string     `json:"email,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	Friends                []string   `json:"friends"`
	SentFriendRequests     []string   `json:"sent_friend_requests"`
	ReceivedFriendRequests []string   `json:"received_friend_requests"`
	CurrentVibe            string     `json:"current_vibe,omitempty"`
	VibeGeneratedAt        *time.Time `json:"vibe_generated_at,omitempty"`
}

func (u UserProfile) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, CurrentVibe: u.CurrentVibe}
}

func (u UserProfile) HasFriend(id string) bool { return slices.Contains(u.Friends, id) }
func (u UserProfile) HasSentTo(id string) bool { return slices.Contains(u.SentFriendRequests, id) }
func (u UserProfile) HasReceivedFrom(id string) bool { return slices.Contains(u.ReceivedFriendRequests, id) }

type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	CurrentVibe string `json:"current_vibe,omitempty"`
}

type ReadingEntry struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Tags            []string   `json:"tags"`
	CreatedAt       time.Time  `json:"created_at"`
	BookDescription string     `json:"book_description,omitempty"`
	CoverImageURL   string     `json:"cover_image_url,omitempty"`
	ISBN            string     `json:"isbn,omitempty"`
	PageCount       *int       `json:"page_count,omitempty"`
	PublishedDate   string     `json:"published_date,omitempty"`
	Publisher       string     `json:"publisher,omitempty"`
	GoogleBooksID   string     `json:"google_books_id,omitempty"`
	DateRead        *time.Time `json:"date_read,omitempty"`
	Review          string     `json:"review,omitempty"`
}

// NewReadingEntry is the owner-supplied part of a ReadingEntry; the id,
// owner and creation time are assigned by the service.
type NewReadingEntry struct {
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Tags            []string   `json:"tags"`
	BookDescription string     `json:"book_description"`
	CoverImageURL   string     `json:"cover_image_url"`
	ISBN            string     `json:"isbn"`
	PageCount       *int       `json:"page_count"`
	PublishedDate   string     `json:"published_date"`
	Publisher       string     `json:"publisher"`
	GoogleBooksID   string     `json:"google_books_id"`
	DateRead        *time.Time `json:"date_read"`
	Review          string     `json:"review"`
}

type FeedEntry struct {
	Entry   ReadingEntry `json:"book"`
	Owner   *UserProfile `json:"-"`
	TimeAgo string       `json:"time_ago"`
}
