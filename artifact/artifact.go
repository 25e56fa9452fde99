/*
Package artifact describes the files a conversion produces and decides
whether a source needs converting again.
*/
package artifact

import (
	log "github.com/sirupsen/logrus"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/fingerprint"
)

// Metadata travels with each produced file to the storage side
type Metadata struct {
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	OrigFileHash string   `json:"orig_file_hash"`
	CreationDate string   `json:"creation_date"`
}

// Artifact is one produced file, named relative to the run's output directory
type Artifact struct {
	TempFilename string   `json:"temp_filename"`
	Metadata     Metadata `json:"metadata"`
}

// ShouldUpdate reports whether the source at location has to be processed
// again given the artifacts produced last time. Any artifact without a
// stored fingerprint, or whose fingerprint does not match location, forces
// an update.
func ShouldUpdate(prior []Artifact, location string, logger *log.Entry) bool {
	if len(prior) == 0 {
		return true
	}
	for _, a := range prior {
		if a.Metadata.OrigFileHash == "" {
			return true
		}
		if !fingerprint.Verify(location, a.Metadata.OrigFileHash) {
			return true
		}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger.Info("Update unnecessary")
	return false
}
