// Package commit discovers the commits a push introduces and reduces their
// changes to the set of files that must be validated.
package commit
