package seller

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Application is a customer's request to become a seller.
type Application struct {
	ID            string     `json:"id"                   bson:"_id"`
	UserID        string     `json:"userId"               bson:"userId"`
	UserName      string     `json:"userName"             bson:"userName"`
	UserEmail     string     `json:"userEmail"            bson:"userEmail"`
	StoreName     string     `json:"storeName"            bson:"storeName"`
	Justification string     `json:"justification"        bson:"justification"`
	Status        Status     `json:"status"               bson:"status"`
	ReviewedBy    string     `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewNote    string     `json:"reviewNote,omitempty" bson:"reviewNote,omitempty"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"            bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"            bson:"updatedAt"`
}

func (a Application) SortKey() (time.Time, string) { return a.CreatedAt, a.ID }

// SubmitRequest is the body of a seller application.
// swagger:model SubmitApplicationRequest
type SubmitRequest struct {
	StoreName     string `json:"storeName"     validate:"required,max=80"   example:"Ana's Notes"`
	Justification string `json:"justification" validate:"required,max=1000" example:"I sell reviewers and lecture notes."`
}

// ReviewRequest records an admin's decision.
// swagger:model ReviewApplicationRequest
type ReviewRequest struct {
	Approve bool   `json:"approve" example:"true"`
	Note    string `json:"note"    validate:"max=500" example:"Welcome aboard"`
}
