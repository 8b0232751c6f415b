package backend

import "github.com/google/uuid"

// Record is the shared view of every synced row, whatever its table
type Record interface {
	RecordID() string
	UpdatedAt() string
	TableName() string
}

// Meta holds the columns every synced table carries
type Meta struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Modified  string `json:"updated_at"`
}

func (m Meta) RecordID() string  { return m.ID }
func (m Meta) UpdatedAt() string { return m.Modified }

// NewMeta mints a fresh identifier and stamps both timestamps with now
func NewMeta() Meta {
	now := NowStamp()
	return Meta{ID: NewID(), CreatedAt: now, Modified: now}
}

// NewID returns a globally unique record identifier
func NewID() string {
	return uuid.NewString()
}

// User is a clinic staff account
type User struct {
	Meta
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	PasswordHash string `json:"password_hash"`
}

func (User) TableName() string { return TableUsers }

// Setting is a key/value application setting shared across devices
type Setting struct {
	Meta
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (Setting) TableName() string { return TableSettings }

// LabTest is an entry in the catalogue of tests the clinic offers
type LabTest struct {
	Meta
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	NormalRange *string `json:"normal_range"`
	Unit        *string `json:"unit"`
}

func (LabTest) TableName() string { return TableTests }

// InventoryItem is a stocked consumable
type InventoryItem struct {
	Meta
	ItemName     string  `json:"item_name"`
	Quantity     int     `json:"quantity"`
	Unit         string  `json:"unit"`
	ReorderLevel int     `json:"reorder_level"`
	ExpiryDate   *string `json:"expiry_date"`
}

func (InventoryItem) TableName() string { return TableInventory }

// Patient is a registered patient
type Patient struct {
	Meta
	FullName    string  `json:"full_name"`
	DateOfBirth *string `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	CreatedBy   *string `json:"created_by"`
}

func (Patient) TableName() string { return TablePatients }

// Report is the result of a test run for a patient
type Report struct {
	Meta
	PatientID string  `json:"patient_id"`
	TestID    string  `json:"test_id"`
	DoctorID  *string `json:"doctor_id"`
	Result    string  `json:"result"`
	Status    string  `json:"status"`
	Notes     *string `json:"notes"`
}

func (Report) TableName() string { return TableReports }

// Chat message statuses
const (
	StatusUnread = "unread"
	StatusRead   = "read"
)

// ChatMessage is a direct message between two users.
// ReplyToID is a weak reference resolved by id lookup only.
type ChatMessage struct {
	Meta
	SenderID    string  `json:"sender_id"`
	ReceiverID  string  `json:"receiver_id"`
	MessageText string  `json:"message_text"`
	Attachment  *string `json:"attachment"`
	Status      string  `json:"status"`
	ReplyToID   *string `json:"reply_to_id"`
}

func (ChatMessage) TableName() string { return TableChat }

// Involves reports whether userID is the sender or receiver
func (m ChatMessage) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// ActivityLog records something a user did
type ActivityLog struct {
	Meta
	UserID  *string `json:"user_id"`
	Action  string  `json:"action"`
	Details *string `json:"details"`
}

func (ActivityLog) TableName() string { return TableActivityLogs }
