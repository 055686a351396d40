package models

import "time"

// BlockerType enumerates the reasons a research candidate cannot proceed
// without a human.
type BlockerType string

const (
	BlockerCaptchaRecaptcha   BlockerType = "captcha_recaptcha"
	BlockerCaptchaHCaptcha    BlockerType = "captcha_hcaptcha"
	BlockerCaptchaCloudflare  BlockerType = "captcha_cloudflare"
	BlockerCaptchaGeneric     BlockerType = "captcha_generic"
	BlockerLoginRequired      BlockerType = "login_required"
	BlockerRateLimit          BlockerType = "rate_limit"
	BlockerBotDetection       BlockerType = "bot_detection"
	BlockerExtractionFailed   BlockerType = "extraction_failed"
	BlockerUnknown            BlockerType = "unknown_blocker"
)

// InterventionStatus is the lifecycle enum for a pending human-assist request.
type InterventionStatus string

const (
	InterventionPending  InterventionStatus = "pending"
	InterventionResolved InterventionStatus = "resolved"
	InterventionSkipped  InterventionStatus = "skipped"
	InterventionExpired  InterventionStatus = "expired"
)

// InterventionResolution is the outcome recorded when a pending request is resolved.
type InterventionResolution string

const (
	ResolutionOK      InterventionResolution = "ok"
	ResolutionSkipped InterventionResolution = "skipped"
)

// Intervention is the Intervention Broker record.
type Intervention struct {
	InterventionID string
	TraceID        string
	URL            string
	BlockerType    BlockerType
	ScreenshotPath string
	CDPURL         string
	Status         InterventionStatus
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	Resolution     *InterventionResolution
}

// PermissionRequest is the sibling of Intervention scoped to local filesystem
// writes outside the allowed paths.
type PermissionRequest struct {
	PermissionID string
	TraceID      string
	ToolName     string
	Path         string
	Reason       string
	Status       InterventionStatus
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	Resolution   *InterventionResolution
}
