package extract

import (
	"regexp"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Resume extracts CV metadata: summary, skills and a contact email.
type Resume struct{}

func NewResume() *Resume { return &Resume{} }

func (r *Resume) Extract(in Input) Result {
	fields := map[string]string{}
	summary := sectionAfter(in.RawText, "summary")
	if summary == "" {
		summary = sectionAfter(in.RawText, "objective")
	}
	if summary != "" {
		fields["summary"] = summary
	}
	if skills := sectionAfter(in.RawText, "skills"); skills != "" {
		fields["skills"] = skills
	}
	if email := emailRe.FindString(in.RawText); email != "" {
		fields["email"] = email
	}
	return Result{Fields: fields}
}
