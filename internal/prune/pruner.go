package prune

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/refprune/internal/filesystem"
)

const (
	referenceLinePatternTemplateConstant = `(?i)<%s\s+Include="%s".*/>`
	lineFeedConstant                     = "\n"
	carriageReturnConstant               = "\r"
	readProjectErrorTemplateConstant     = "unable to read project file %s: %w"
	statProjectErrorTemplateConstant     = "unable to stat project file %s: %w"
	writeProjectErrorTemplateConstant    = "unable to write project file %s: %w"
	rewriteLogMessageConstant            = "Rewriting project file"
	skipRewriteLogMessageConstant        = "No matching reference lines"
	dryRunLogMessageConstant             = "Dry run; project file left untouched"
	logFieldProjectFileConstant          = "project_file"
	logFieldElementConstant              = "element"
	logFieldIncludeConstant              = "include"
	logFieldRemovedLinesConstant         = "removed_lines"
)

// ReferenceKind names the project file element that declares a reference.
type ReferenceKind string

// Supported reference elements.
const (
	ProjectReferenceKind ReferenceKind = "ProjectReference"
	PackageReferenceKind ReferenceKind = "PackageReference"
)

// Pruner deletes reference declaration lines from project files.
type Pruner struct {
	logger     *zap.Logger
	fileSystem filesystem.FileSystem
	dryRun     bool
}

// NewPruner constructs a Pruner. A dry-run pruner counts matching lines without writing.
func NewPruner(logger *zap.Logger, fileSystem filesystem.FileSystem, dryRun bool) *Pruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{logger: logger, fileSystem: filesystem.Resolve(fileSystem), dryRun: dryRun}
}

// Remove deletes every line of the project file that declares kind with the given include value.
// Remaining lines keep their order and terminators; the file keeps its permissions.
func (pruner *Pruner) Remove(projectPath string, kind ReferenceKind, include string) (int, error) {
	fileContent, readError := pruner.fileSystem.ReadFile(projectPath)
	if readError != nil {
		return 0, fmt.Errorf(readProjectErrorTemplateConstant, projectPath, readError)
	}

	linePattern := regexp.MustCompile(fmt.Sprintf(referenceLinePatternTemplateConstant, regexp.QuoteMeta(string(kind)), regexp.QuoteMeta(include)))
	updatedContent, removedLines := removeMatchingLines(string(fileContent), linePattern)

	if removedLines == 0 {
		pruner.logger.Debug(skipRewriteLogMessageConstant,
			zap.String(logFieldProjectFileConstant, projectPath),
			zap.String(logFieldElementConstant, string(kind)),
			zap.String(logFieldIncludeConstant, include),
		)
		return 0, nil
	}

	if pruner.dryRun {
		pruner.logger.Debug(dryRunLogMessageConstant,
			zap.String(logFieldProjectFileConstant, projectPath),
			zap.Int(logFieldRemovedLinesConstant, removedLines),
		)
		return removedLines, nil
	}

	fileInfo, infoError := pruner.fileSystem.Stat(projectPath)
	if infoError != nil {
		return 0, fmt.Errorf(statProjectErrorTemplateConstant, projectPath, infoError)
	}

	writeError := pruner.fileSystem.WriteFile(projectPath, []byte(updatedContent), fileInfo.Mode().Perm())
	if writeError != nil {
		return 0, fmt.Errorf(writeProjectErrorTemplateConstant, projectPath, writeError)
	}

	pruner.logger.Info(rewriteLogMessageConstant,
		zap.String(logFieldProjectFileConstant, projectPath),
		zap.String(logFieldElementConstant, string(kind)),
		zap.String(logFieldIncludeConstant, include),
		zap.Int(logFieldRemovedLinesConstant, removedLines),
	)

	return removedLines, nil
}

func removeMatchingLines(content string, linePattern *regexp.Regexp) (string, int) {
	var builder strings.Builder
	builder.Grow(len(content))

	removedLines := 0
	for _, line := range strings.SplitAfter(content, lineFeedConstant) {
		if len(line) == 0 {
			continue
		}
		lineBody := strings.TrimSuffix(strings.TrimSuffix(line, lineFeedConstant), carriageReturnConstant)
		if linePattern.MatchString(lineBody) {
			removedLines++
			continue
		}
		builder.WriteString(line)
	}

	return builder.String(), removedLines
}
