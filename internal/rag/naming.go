package rag

import (
	"fmt"
	"regexp"
	"strings"
)

var collectionNameRegexp = regexp.MustCompile("[^a-z0-9_-]+")

const maxCollectionNameLength = 255

// CollectionName builds a vector collection name for one index generation of
// a repository. Every re-index writes to a new generation.
func CollectionName(repositoryKey, embedderModel string, generation int64) string {
	repo := strings.ToLower(strings.ReplaceAll(repositoryKey, "/", "-"))
	model := strings.ToLower(strings.Split(embedderModel, ":")[0])

	repo = collectionNameRegexp.ReplaceAllString(repo, "")
	model = collectionNameRegexp.ReplaceAllString(model, "")

	suffix := fmt.Sprintf("-%s-g%d", model, generation)
	name := "repo-" + repo
	if len(name)+len(suffix) > maxCollectionNameLength {
		name = name[:maxCollectionNameLength-len(suffix)]
	}
	return name + suffix
}
