package testutil

import (
	"time"

	"github.com/zjrosen/gitfold/internal/vcs"
)

// commitData holds everything known about one commit before Build.
type commitData struct {
	label     string
	parents   []string
	author    vcs.Signature
	committer vcs.Signature
	message   string
	paths     []string
	missing   bool
	fetchable bool
	timeSet   bool
}

// CommitOption configures a commit added with WithCommit.
type CommitOption func(*commitData)

func defaultCommit(label string) commitData {
	return commitData{
		label:     label,
		author:    vcs.Signature{Name: "Ada Lovelace", Email: "ada@example.com"},
		committer: vcs.Signature{Name: "Ada Lovelace", Email: "ada@example.com"},
		message:   "commit " + label,
	}
}

// Parents sets parent labels in order; the first is the first parent.
func Parents(labels ...string) CommitOption {
	return func(c *commitData) { c.parents = labels }
}

// Subject sets a single-line message.
func Subject(s string) CommitOption {
	return func(c *commitData) { c.message = s }
}

// Message sets the full message, subject line first.
func Message(m string) CommitOption {
	return func(c *commitData) { c.message = m }
}

// Author sets author name and email.
func Author(name, email string) CommitOption {
	return func(c *commitData) {
		c.author.Name = name
		c.author.Email = email
	}
}

// Committer sets committer name and email.
func Committer(name, email string) CommitOption {
	return func(c *commitData) {
		c.committer.Name = name
		c.committer.Email = email
	}
}

// At sets both author and committer time.
func At(ts time.Time) CommitOption {
	return func(c *commitData) {
		c.author.When = ts
		c.committer.When = ts
		c.timeSet = true
	}
}

// Paths sets the paths changed against the first parent.
func Paths(paths ...string) CommitOption {
	return func(c *commitData) { c.paths = paths }
}

// Missing marks the commit object as absent from the local store; every
// query about it fails with a *vcs.MissingObjectError.
func Missing() CommitOption {
	return func(c *commitData) { c.missing = true }
}

// Fetchable marks a missing commit as recoverable through FetchMissing.
func Fetchable() CommitOption {
	return func(c *commitData) {
		c.missing = true
		c.fetchable = true
	}
}
