// Package model contains abstract data models.
package model

import "time"

type Commit struct {
	ID             string `json:"commit"`
	Parents        []string
	Author         string
	AuthorEmail    string
	AuthorDate     time.Time
	Committer      string
	CommitterEmail string
	CommitterDate  time.Time
	Subject        string
}

func (c *Commit) ShortID() string {
	if len(c.ID) < 8 {
		return c.ID
	}
	return c.ID[:8]
}

// NewerThan reports whether c was authored strictly after other.
func (c *Commit) NewerThan(other *Commit) bool {
	return c.AuthorDate.After(other.AuthorDate)
}
