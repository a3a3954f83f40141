package evidence

import (
	"sync"

	"github.com/jleaniz/turbinia/internal/pkg/registry"
)

// nolint: gochecknoglobals
var types = sync.OnceValue(func() *registry.Registry[Evidence] {
	r := registry.New[Evidence]("evidence type")
	err := r.RegisterMany(map[string]registry.Factory[Evidence]{
		TypeRawDisk:                    func() Evidence { return NewRawDisk("") },
		TypeEwfDisk:                    func() Evidence { return NewEwfDisk("") },
		TypeDiskPartition:              func() Evidence { return NewDiskPartition("") },
		TypeGoogleCloudDisk:            func() Evidence { return NewGoogleCloudDisk("", "", "") },
		TypeGoogleCloudDiskRawEmbedded: func() Evidence { return NewGoogleCloudDiskRawEmbedded("") },
		TypeDirectory:                  func() Evidence { return NewDirectory("") },
		TypeCompressedDirectory:        func() Evidence { return NewCompressedDirectory("") },
		TypeDockerContainer:            func() Evidence { return NewDockerContainer("") },
		TypeContainerdContainer:        func() Evidence { return NewContainerdContainer("", "") },
		TypeRawMemory:                  func() Evidence { return NewRawMemory("", "") },
		TypeReportText:                 func() Evidence { return NewReportText("") },
		TypeFinalReport:                func() Evidence { return NewFinalReport("") },
		TypeTextFile:                   func() Evidence { return NewTextFile("") },
		TypeBodyFile:                   func() Evidence { return NewBodyFile("", 0) },
		TypePlasoFile:                  func() Evidence { return NewPlasoFile("") },
		TypeChromiumProfile:            func() Evidence { return NewChromiumProfile("", "", "") },
		TypeExportedFileArtifact:       func() Evidence { return NewExportedFileArtifact("", "") },
		TypeEvidenceCollection:         func() Evidence { return NewEvidenceCollection() },
	})
	if err != nil {
		panic(err)
	}
	return r
})

// Types returns names of all evidence variants, sorted alphabetically.
func Types() []string {
	return types().Names()
}

// IsType returns true if the name is a known evidence variant, the match is case-insensitive.
func IsType(name string) bool {
	return types().Has(name)
}

// New creates an empty evidence of the variant.
func New(typ string) (Evidence, error) {
	return types().Get(typ)
}
