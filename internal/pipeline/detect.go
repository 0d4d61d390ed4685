package pipeline

import "strings"

type DetectResult struct {
	IsExport bool
	Score    float64
	Reason   string
}

var detectKeywords = []string{"extraction", "export", "screening", "covidence", "review", "database", "search"}

// DetectExportMail scores a message as carrying a literature review export.
func DetectExportMail(subject string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
	}

	for _, name := range attachmentNames {
		if !IsTableFile(name) {
			continue
		}
		score += 0.4
		ln := strings.ToLower(name)
		for _, kw := range detectKeywords {
			if strings.Contains(ln, kw) {
				score += 0.2
				break
			}
		}
		break
	}
	if score > 1 {
		score = 1
	}

	isExport := score >= 0.45
	reason := "rules_negative"
	if isExport {
		reason = "rules_positive"
	}
	return DetectResult{IsExport: isExport, Score: score, Reason: reason}
}
