package entity

// IssueType 问题分类
type IssueType string

const (
	IssueHTML          IssueType = "html"
	IssueAccessibility IssueType = "accessibility"
	IssuePerformance   IssueType = "performance"
	IssueSecurity      IssueType = "security"
	IssueSEO           IssueType = "seo"
	IssueCrossBrowser  IssueType = "cross-browser"
)

// Severity 严重级别
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SafetyLevel 内容安全校验严格度
type SafetyLevel string

const (
	SafetyStrict   SafetyLevel = "strict"
	SafetyModerate SafetyLevel = "moderate"
	SafetyMinimal  SafetyLevel = "minimal"
)

// ParseSafetyLevel 解析严格度，未知值回退到 strict
func ParseSafetyLevel(s string) SafetyLevel {
	switch SafetyLevel(s) {
	case SafetyModerate:
		return SafetyModerate
	case SafetyMinimal:
		return SafetyMinimal
	default:
		return SafetyStrict
	}
}

// GenerationIssue 生成内容中的单个问题
type GenerationIssue struct {
	ID           string    `json:"id" bson:"id"`
	Type         IssueType `json:"type" bson:"type"`
	Message      string    `json:"message" bson:"message"`
	Severity     Severity  `json:"severity" bson:"severity"`
	AIFixable    bool      `json:"aiFixable" bson:"ai_fixable"`
	SuggestedFix string    `json:"suggestedFix,omitempty" bson:"suggested_fix,omitempty"`
}

// ValidationResult 校验结果，创建后不可变
type ValidationResult struct {
	Passed           bool              `json:"passed" bson:"passed"`
	Issues           []GenerationIssue `json:"issues" bson:"issues"`
	AIFixesAvailable []string          `json:"aiFixesAvailable" bson:"ai_fixes_available"`
	ConfidenceScore  float64           `json:"confidenceScore" bson:"confidence_score"`
}

// HasSeverity 是否存在指定级别的问题
func (r ValidationResult) HasSeverity(s Severity) bool {
	for _, i := range r.Issues {
		if i.Severity == s {
			return true
		}
	}
	return false
}
