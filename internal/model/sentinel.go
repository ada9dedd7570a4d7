package model

// Field-level sentinels. NotDisclosed means the document was read and says
// nothing about the field; the failure sentinels mean the document could not
// be processed at all. The two groups never compare equal.
const (
	NotDisclosed = "未披露"
	MissingValue = "N/A"

	DocumentUnreachable  = "文档无法获取"
	DocumentUnreadable   = "文档解析失败"
	ExtractorUnavailable = "提取服务未配置"
	ExtractTimeout       = "文档处理超时"
	NoDocument           = "无公告文件"

	// LegacyNotExtracted is the sentinel older releases wrote into every
	// derived column when extraction failed.
	LegacyNotExtracted = "未提取到"

	ProfileLookupFailed = "查询失败"
)

// ExtractOutcome classifies the result of a detail extraction.
type ExtractOutcome string

const (
	OutcomeOK          ExtractOutcome = "ok"
	OutcomeNoDocument  ExtractOutcome = "no_document"
	OutcomeUnreachable ExtractOutcome = "unreachable"
	OutcomeUnreadable  ExtractOutcome = "unreadable"
	OutcomeUnavailable ExtractOutcome = "unavailable"
	OutcomeTimeout     ExtractOutcome = "timeout"
)

// Failed reports whether the outcome is a processing failure.
func (o ExtractOutcome) Failed() bool {
	return o != OutcomeOK && o != ""
}

// Sentinel returns the failure sentinel for the outcome, or "" for OutcomeOK.
func (o ExtractOutcome) Sentinel() string {
	switch o {
	case OutcomeNoDocument:
		return NoDocument
	case OutcomeUnreachable:
		return DocumentUnreachable
	case OutcomeUnreadable:
		return DocumentUnreadable
	case OutcomeUnavailable:
		return ExtractorUnavailable
	case OutcomeTimeout:
		return ExtractTimeout
	default:
		return ""
	}
}

// Terminal reports whether retrying the same row can never succeed.
func (o ExtractOutcome) Terminal() bool {
	return o == OutcomeNoDocument
}

// CountsAttempt reports whether a failure with this outcome consumes one of
// the row's enrichment attempts. Configuration errors do not.
func (o ExtractOutcome) CountsAttempt() bool {
	return o.Failed() && o != OutcomeUnavailable
}

// FailureSentinels lists every value that marks a failed extraction.
func FailureSentinels() []string {
	return []string{
		DocumentUnreachable,
		DocumentUnreadable,
		ExtractorUnavailable,
		ExtractTimeout,
		NoDocument,
		LegacyNotExtracted,
	}
}

// IsFailureSentinel reports whether s is one of the failure sentinels.
func IsFailureSentinel(s string) bool {
	for _, f := range FailureSentinels() {
		if s == f {
			return true
		}
	}
	return false
}
