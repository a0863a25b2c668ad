// Package subject classifies commit subjects and resolves pull request
// titles from merge commit messages.
package subject

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zjrosen/gitfold/internal/vcs"
)

// Class is the kind of change a subject describes.
type Class int

const (
	ClassPlain Class = iota
	ClassRevert
	ClassBreaking
	ClassFixup
	ClassRefactor
	ClassDeps
	ClassConfig
	ClassTest
	ClassCI
	ClassPerf
	ClassFix
	ClassDocs
	ClassImprovement
	ClassHotfix
	ClassFeature
	ClassRelease
	ClassBuild
	ClassImport
	ClassSubtreeUpdate
	ClassRemove
	ClassStyle
	ClassRename
	ClassPullRequest
	ClassMerge
)

var classNames = map[Class]string{
	ClassPlain:         "plain",
	ClassRevert:        "revert",
	ClassBreaking:      "breaking",
	ClassFixup:         "fixup",
	ClassRefactor:      "refactor",
	ClassDeps:          "deps",
	ClassConfig:        "config",
	ClassTest:          "test",
	ClassCI:            "ci",
	ClassPerf:          "perf",
	ClassFix:           "fix",
	ClassDocs:          "docs",
	ClassImprovement:   "improvement",
	ClassHotfix:        "hotfix",
	ClassFeature:       "feature",
	ClassRelease:       "release",
	ClassBuild:         "build",
	ClassImport:        "import",
	ClassSubtreeUpdate: "subtree-update",
	ClassRemove:        "remove",
	ClassStyle:         "style",
	ClassRename:        "rename",
	ClassPullRequest:   "pull-request",
	ClassMerge:         "merge",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "unknown"
}

// Icon is the single-cell marker shown before the subject.
func (c Class) Icon() string {
	switch c {
	case ClassRevert:
		return "↶"
	case ClassBreaking:
		return "⚠"
	case ClassFixup:
		return "f"
	case ClassRefactor:
		return "↺"
	case ClassDeps:
		return "⬆"
	case ClassConfig:
		return "⚙"
	case ClassTest:
		return "T"
	case ClassCI:
		return "C"
	case ClassPerf:
		return "⚡"
	case ClassFix, ClassHotfix:
		return "B"
	case ClassDocs:
		return "✎"
	case ClassImprovement:
		return "↑"
	case ClassFeature:
		return "+"
	case ClassRelease:
		return "⚑"
	case ClassBuild:
		return "b"
	case ClassImport, ClassSubtreeUpdate:
		return "⮈"
	case ClassRemove:
		return "-"
	case ClassStyle:
		return "s"
	case ClassRename:
		return "R"
	case ClassPullRequest:
		return "⇄"
	case ClassMerge:
		return "⑂"
	default:
		return ""
	}
}

type rule struct {
	re    *regexp.Regexp
	class Class
}

// rules are tried in order; the first match wins.
var rules = []rule{
	{regexp.MustCompile(`(?i)^Revert:?\s*`), ClassRevert},
	{regexp.MustCompile(`(?i)^BREAKING CHANGE:?\s*`), ClassBreaking},
	{regexp.MustCompile(`(?i)^fixup!\s+`), ClassFixup},
	{regexp.MustCompile(`(?i)^ref(actor)?(\(.+\))?:\s*`), ClassRefactor},
	{regexp.MustCompile(`(?i)^deps(\(.+\))?:?\s*`), ClassDeps},
	{regexp.MustCompile(`(?i)^config:?\s*`), ClassConfig},
	{regexp.MustCompile(`(?i)^test(s)?(\(.+\))?:?\s*`), ClassTest},
	{regexp.MustCompile(`(?i)^ci(\(.+\))?:\s*`), ClassCI},
	{regexp.MustCompile(`(?i)^perf(\(.+\))?:?\s*`), ClassPerf},
	{regexp.MustCompile(`(?i)^(bug)?fix(ing|ed)?(\(.+\))?[/:\s]+`), ClassFix},
	{regexp.MustCompile(`(?i)^doc(s|umentation)?(\(.+\))?:?\s+`), ClassDocs},
	{regexp.MustCompile(`(?i)^improve(ment)?:?\s*`), ClassImprovement},
	{regexp.MustCompile(`(?i)^hotfix:?\s*`), ClassHotfix},
	{regexp.MustCompile(`(?i)^feat(ure)?(\(.+\))?!?:?\s*`), ClassFeature},
	{regexp.MustCompile(`(?i)^add(ed)?:?\s+`), ClassFeature},
	{regexp.MustCompile(`(?i)^(release|bump)(\(.+\))?:?\s*`), ClassRelease},
	{regexp.MustCompile(`(?i)^(build|chore)(\(.+\))?:?\s*`), ClassBuild},
	{regexp.MustCompile(`(?i)\bchangelog\b`), ClassDocs},
	{regexp.MustCompile(`(?i)^Merge pull request #\d+`), ClassPullRequest},
	{regexp.MustCompile(`(?i)^Merged in \S+ \(pull request #\d+\)`), ClassPullRequest},
	{regexp.MustCompile(`(?i)^Update :\w+`), ClassSubtreeUpdate},
	{regexp.MustCompile(`(?i)^.* Import .*`), ClassImport},
	{regexp.MustCompile(`(?i)^Merge (remote-tracking )?(branch|tag|commit)`), ClassMerge},
	{regexp.MustCompile(`(?i)^Remove:?\s+`), ClassRemove},
	{regexp.MustCompile(`(?i)^style(\(.+\))?:?\s*`), ClassStyle},
	{regexp.MustCompile(`(?i)^rename:?\s+`), ClassRename},
}

var (
	scopeRe     = regexp.MustCompile(`^(\w+)\(([^)]+)\)(!?): (.+)`)
	githubPRRe  = regexp.MustCompile(`^Merge pull request #(\d+) from (\S+)`)
	bitbucketRe = regexp.MustCompile(`^Merged in (\S+) \(pull request #(\d+)\)`)
	gitlabRe    = regexp.MustCompile(`(?m)^See merge request [^!\s]*!(\d+)\s*$`)
	branchRe    = regexp.MustCompile(`^Merge branch '([^']+)'`)
)

// Parsed is the classification of one subject.
type Parsed struct {
	Class Class
	// Scope is the conventional-commit scope, as in "fix(parser): ...".
	Scope string
	// Short is the subject with the scope removed.
	Short string
}

// Classify parses a subject line.
func Classify(subject string) Parsed {
	p := Parsed{Class: ClassPlain, Short: subject}
	for _, r := range rules {
		if r.re.MatchString(subject) {
			p.Class = r.class
			break
		}
	}
	if m := scopeRe.FindStringSubmatch(subject); m != nil {
		p.Scope = m[2]
		p.Short = m[1] + m[3] + ": " + m[4]
	}
	return p
}

// PullRequest identifies the pull request a merge commit closed.
type PullRequest struct {
	Number int
	Branch string
}

// PullRequestOf recognizes GitHub, Bitbucket and GitLab merge messages.
func PullRequestOf(md vcs.Metadata) (PullRequest, bool) {
	if m := githubPRRe.FindStringSubmatch(md.Subject); m != nil {
		n, _ := strconv.Atoi(m[1])
		return PullRequest{Number: n, Branch: m[2]}, true
	}
	if m := bitbucketRe.FindStringSubmatch(md.Subject); m != nil {
		n, _ := strconv.Atoi(m[2])
		return PullRequest{Number: n, Branch: m[1]}, true
	}
	if m := gitlabRe.FindStringSubmatch(md.Message); m != nil {
		n, _ := strconv.Atoi(m[1])
		branch := ""
		if b := branchRe.FindStringSubmatch(md.Subject); b != nil {
			branch = b[1]
		}
		return PullRequest{Number: n, Branch: branch}, true
	}
	return PullRequest{}, false
}

// Title resolves the display subject. For pull request merges this is the
// pull request title, read from the first non-empty body line, followed by
// the number. ok is false when the raw subject is returned.
func Title(md vcs.Metadata) (title string, ok bool) {
	pr, isPR := PullRequestOf(md)
	if !isPR {
		return md.Subject, false
	}
	for _, line := range strings.Split(md.Body(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || gitlabRe.MatchString(line) || strings.HasPrefix(line, "Merge ") {
			continue
		}
		return fmt.Sprintf("%s (#%d)", line, pr.Number), true
	}
	return md.Subject, false
}
