// Package safety 对生成的页面标记做静态安全与质量校验
package safety

import (
	"context"

	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/metrics"
)

const (
	confidencePassed   = 0.9
	confidenceIssues   = 0.75
	confidenceHighRisk = 0.6
)

// Layer 内容安全校验层，无状态，可并发使用
type Layer struct {
	level     entity.SafetyLevel
	sanitizer Sanitizer
	auditor   Auditor
}

// NewLayer 创建校验层；sanitizer 与 auditor 可为 nil，缺省时只运行本地启发式规则
func NewLayer(level entity.SafetyLevel, sanitizer Sanitizer, auditor Auditor) *Layer {
	if level == "" {
		level = entity.SafetyStrict
	}
	return &Layer{level: level, sanitizer: sanitizer, auditor: auditor}
}

// NewLayerFromConfig 按配置装配协作方
func NewLayerFromConfig(cfg config.SafetyConfig) *Layer {
	var sanitizer Sanitizer
	if cfg.Sanitizer {
		sanitizer = NewBluemondaySanitizer()
	}
	var auditor Auditor
	if cfg.StructuralAudit {
		auditor = NewStructuralAuditor()
	}
	return NewLayer(entity.ParseSafetyLevel(cfg.Level), sanitizer, auditor)
}

// Level 当前严格度
func (l *Layer) Level() entity.SafetyLevel {
	return l.level
}

// WithLevel 返回指定严格度的副本
func (l *Layer) WithLevel(level entity.SafetyLevel) *Layer {
	cp := *l
	cp.level = level
	return &cp
}

// Validate 依次运行各项检查并合并结果。
// 判定规则：全部问题均为 low 时通过。
func (l *Layer) Validate(ctx context.Context, markup string) entity.ValidationResult {
	var issues []entity.GenerationIssue

	issues = append(issues, checkMaliciousCode(markup)...)

	if l.sanitizer != nil {
		if issue, ok := checkSanitizerDiff(l.sanitizer, markup); ok {
			issues = append(issues, issue)
		}
	}

	a11y := l.a11ySeverity()
	issues = append(issues, checkAccessibility(markup, a11y)...)
	if l.auditor != nil {
		findings, err := l.auditor.Audit(ctx, markup)
		if err != nil {
			logger.Warn(ctx, "structural audit failed", "error", err)
		}
		for _, f := range findings {
			issues = append(issues, f.issue(a11y))
		}
	}

	issues = append(issues, checkSEO(markup)...)
	issues = append(issues, moderateContentPolicy(markup)...)
	issues = append(issues, checkCopyright(markup)...)

	return l.result(issues)
}

func (l *Layer) result(issues []entity.GenerationIssue) entity.ValidationResult {
	res := entity.ValidationResult{
		Passed:           true,
		Issues:           issues,
		AIFixesAvailable: []string{},
	}
	if res.Issues == nil {
		res.Issues = []entity.GenerationIssue{}
	}

	for _, issue := range issues {
		if issue.Severity != entity.SeverityLow {
			res.Passed = false
		}
		if issue.AIFixable {
			fix := issue.SuggestedFix
			if fix == "" {
				fix = issue.Message
			}
			res.AIFixesAvailable = append(res.AIFixesAvailable, fix)
		}
		metrics.ValidationIssues.WithLabelValues(string(issue.Type), string(issue.Severity)).Inc()
	}

	switch {
	case res.Passed:
		res.ConfidenceScore = confidencePassed
	case res.HasSeverity(entity.SeverityHigh):
		res.ConfidenceScore = confidenceHighRisk
	default:
		res.ConfidenceScore = confidenceIssues
	}

	status := "passed"
	if !res.Passed {
		status = "failed"
	}
	metrics.ValidationTotal.WithLabelValues(string(l.level), status).Inc()
	return res
}

// strict 下无障碍问题升级为 medium
func (l *Layer) a11ySeverity() entity.Severity {
	if l.level == entity.SafetyStrict {
		return entity.SeverityMedium
	}
	return entity.SeverityLow
}

// moderateContentPolicy 内容策略审核扩展点，接入审核服务前不产出问题
func moderateContentPolicy(string) []entity.GenerationIssue {
	return nil
}

// checkCopyright 版权检查扩展点
func checkCopyright(string) []entity.GenerationIssue {
	return nil
}
