package dto

// SubmitRequest defines payload for a fan submission. Image references point
// at files already stored by the upload service.
type SubmitRequest struct {
	InviteCode string   `json:"invite_code" validate:"required,max=20"`
	Nickname   string   `json:"nickname" validate:"required,max=100"`
	Comment    string   `json:"comment" validate:"max=2000"`
	ImageURLs  []string `json:"image_urls" validate:"required,min=1,dive,required,max=1024"`
}

// MarkAbnormalRequest defines payload for disqualifying a submission.
type MarkAbnormalRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SubmissionListQuery pages through a task's submissions.
type SubmissionListQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
