package model

import "time"

// Category is the closed set of labels the classifier may assign to a
// message. Uncategorized is both the initial value of every new message
// and the fallback when classification fails.
type Category string

const (
	CategoryInterested    Category = "Interested"
	CategoryMeetingBooked Category = "Meeting Booked"
	CategoryNotInterested Category = "Not Interested"
	CategorySpam          Category = "Spam"
	CategoryOutOfOffice   Category = "Out of Office"
	CategoryUncategorized Category = "Uncategorized"
)

// Categories returns every valid category label in a stable order.
func Categories() []Category {
	return []Category{
		CategoryInterested,
		CategoryMeetingBooked,
		CategoryNotInterested,
		CategorySpam,
		CategoryOutOfOffice,
		CategoryUncategorized,
	}
}

// ParseCategory maps a label string to a Category. It reports false for
// anything outside the closed set, including the empty string.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryUncategorized, false
}

// Attachment holds metadata about a message attachment. Attachment
// content is never stored, only described.
type Attachment struct {
	Filename  string `json:"filename"`
	MIMEType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	ContentID string `json:"content_id,omitempty"`
}

// Message is one ingested email message. Two fetches of the same
// underlying protocol message collide on (MessageID, AccountID) at the
// persistence layer; ID is a generated record identifier and is not
// part of the dedupe key.
type Message struct {
	ID          string
	MessageID   string
	AccountID   string
	From        string
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Date        time.Time
	Folder      string
	Category    Category
	Read        bool
	Attachments []Attachment
	Headers     map[string]string
	FetchedAt   time.Time
}
