package evidence

import (
	"context"
)

const (
	TypeRawMemory            = "RawMemory"
	TypeReportText           = "ReportText"
	TypeFinalReport          = "FinalReport"
	TypeTextFile             = "TextFile"
	TypeBodyFile             = "BodyFile"
	TypePlasoFile            = "PlasoFile"
	TypeChromiumProfile      = "ChromiumProfile"
	TypeExportedFileArtifact = "ExportedFileArtifact"
)

// RawMemory is a memory dump.
type RawMemory struct {
	Base
	Profile    string   `json:"profile,omitempty"`
	ModuleList []string `json:"module_list,omitempty"`
}

// ReportText is a text report produced by a task.
type ReportText struct {
	Base
	TextData string `json:"text_data,omitempty"`
}

// FinalReport is the report of the whole request.
type FinalReport struct {
	ReportText
}

type TextFile struct {
	Base
}

// BodyFile is a file in the mactime body format.
type BodyFile struct {
	Base
	NumberOfEntries int64 `json:"number_of_entries,omitempty"`
}

type PlasoFile struct {
	Base
	PlasoDir string `json:"plaso_dir,omitempty"`
}

type ChromiumProfile struct {
	Base
	BrowserType  string `json:"browser_type,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

type ExportedFileArtifact struct {
	Base
	ArtifactName string `json:"artifact_name,omitempty"`
}

func NewRawMemory(sourcePath, profile string, modules ...string) *RawMemory {
	e := &RawMemory{Base: newBase(TypeRawMemory), Profile: profile, ModuleList: modules}
	e.SourcePath = sourcePath
	return e
}

func NewReportText(text string) *ReportText {
	return &ReportText{Base: newBase(TypeReportText), TextData: text}
}

func NewFinalReport(text string) *FinalReport {
	e := &FinalReport{ReportText: ReportText{Base: newBase(TypeFinalReport), TextData: text}}
	e.SaveMetadata = true
	return e
}

func NewTextFile(sourcePath string) *TextFile {
	e := &TextFile{Base: newBase(TypeTextFile)}
	e.SourcePath = sourcePath
	e.Copyable = true
	return e
}

func NewBodyFile(sourcePath string, entries int64) *BodyFile {
	e := &BodyFile{Base: newBase(TypeBodyFile), NumberOfEntries: entries}
	e.SourcePath = sourcePath
	e.Copyable = true
	return e
}

func NewPlasoFile(sourcePath string) *PlasoFile {
	e := &PlasoFile{Base: newBase(TypePlasoFile)}
	e.SourcePath = sourcePath
	e.Copyable = true
	e.SaveMetadata = true
	return e
}

func NewChromiumProfile(sourcePath, browserType, outputFormat string) *ChromiumProfile {
	e := &ChromiumProfile{Base: newBase(TypeChromiumProfile), BrowserType: browserType, OutputFormat: outputFormat}
	e.SourcePath = sourcePath
	return e
}

func NewExportedFileArtifact(sourcePath, artifactName string) *ExportedFileArtifact {
	e := &ExportedFileArtifact{Base: newBase(TypeExportedFileArtifact), ArtifactName: artifactName}
	e.SourcePath = sourcePath
	e.Copyable = true
	return e
}

func (e *RawMemory) Validate(ctx context.Context) error {
	return e.validateRequired(ctx, map[string]any{"source_path": e.SourcePath, "profile": e.Profile})
}

// Validate accepts a report without any attributes, the text can be empty.
func (e *ReportText) Validate(context.Context) error {
	return nil
}

func (e *ChromiumProfile) Validate(ctx context.Context) error {
	return e.validateRequired(ctx, map[string]any{"browser_type": e.BrowserType, "output_format": e.OutputFormat})
}

func (e *ExportedFileArtifact) Validate(ctx context.Context) error {
	return e.validateRequired(ctx, map[string]any{"source_path": e.SourcePath, "artifact_name": e.ArtifactName})
}
