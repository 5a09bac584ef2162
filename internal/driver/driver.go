package driver

import (
	"errors"
	"time"
)

// Status — статус заявки водителя.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
)

// IsFinal сообщает, что статус терминальный.
func (s Status) IsFinal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Known сообщает, что статус из допустимого набора.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound сообщает об отсутствии заявки.
	ErrNotFound = errors.New("driver not found")
	// ErrConflict сообщает, что переход недопустим из текущего статуса.
	ErrConflict = errors.New("driver status conflict")
	// ErrNotClaimant сообщает, что действие выполняет не тот, кто взял заявку.
	ErrNotClaimant = errors.New("driver claimed by another reviewer")
	// ErrAlreadyLinked сообщает, что у заявки уже есть привязанный аккаунт.
	ErrAlreadyLinked = errors.New("driver already linked")
)

type Passport struct {
	FullName     string `json:"fullName"`
	SerialNumber string `json:"serialNumber"`
	BirthDate    string `json:"birthDate"`
}

type License struct {
	Series     string `json:"series"`
	Number     string `json:"number"`
	IssueDate  string `json:"issueDate"`
	Categories string `json:"categories"`
}

type TechPassport struct {
	Series string `json:"series"`
	Number string `json:"number"`
	Year   string `json:"year"`
	Model  string `json:"model"`
}

// Driver — заявка, созданная после прохождения всех этапов.
type Driver struct {
	ID         string
	TelegramID int64
	Username   string
	Language   string

	Passport     Passport
	License      License
	TechPassport TechPassport
	Phone        string
	// Media хранит ссылки на фото в виде "STAGE.field" -> file_id.
	Media map[string]string

	InvitedBy         int64
	InvitedByUsername string

	Status         Status
	ClaimedBy      int64
	ClaimedByName  string
	ResolvedBy     int64
	ResolvedByName string

	QueueChatID    int64
	QueueMessageID int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reachable сообщает, можно ли отправить уведомление субъекту заявки.
func (d Driver) Reachable() bool {
	return d.TelegramID != 0
}

// Claim переводит pending -> in_progress.
func (d *Driver) Claim(reviewerID int64, reviewerName string) error {
	if d.Status != StatusPending {
		return ErrConflict
	}
	d.Status = StatusInProgress
	d.ClaimedBy = reviewerID
	d.ClaimedByName = reviewerName
	return nil
}

// Approve переводит in_progress -> approved.
// При strict подтвердить может только взявший заявку.
func (d *Driver) Approve(reviewerID int64, strict bool) error {
	if d.Status != StatusInProgress {
		return ErrConflict
	}
	if strict && d.ClaimedBy != reviewerID {
		return ErrNotClaimant
	}
	d.Status = StatusApproved
	d.ClaimedBy = 0
	d.ResolvedBy = reviewerID
	return nil
}

// Reject переводит pending или in_progress -> rejected.
func (d *Driver) Reject(reviewerID int64, strict bool) error {
	switch d.Status {
	case StatusPending:
	case StatusInProgress:
		if strict && d.ClaimedBy != reviewerID {
			return ErrNotClaimant
		}
	default:
		return ErrConflict
	}
	d.Status = StatusRejected
	d.ClaimedBy = 0
	d.ResolvedBy = reviewerID
	return nil
}

// Release возвращает взятую заявку в очередь.
func (d *Driver) Release() error {
	if d.Status != StatusInProgress {
		return ErrConflict
	}
	d.Status = StatusPending
	d.ClaimedBy = 0
	d.ClaimedByName = ""
	return nil
}

// LinkSubject привязывает аккаунт к заявке, собранной по приглашению.
func (d *Driver) LinkSubject(telegramID int64) error {
	if d.InvitedBy == 0 || d.TelegramID != 0 {
		return ErrAlreadyLinked
	}
	if telegramID == d.InvitedBy {
		return ErrConflict
	}
	d.TelegramID = telegramID
	return nil
}
