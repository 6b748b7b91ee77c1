package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/a3tai/mcp-pdf-formfill/internal/document"
	"github.com/a3tai/mcp-pdf-formfill/internal/formfill"
)

// maxListedFiles caps directory listings in server info
const maxListedFiles = 10

// Formatting methods

func formatInspectResult(result *formfill.InspectResult) string {
	text := fmt.Sprintf("Form: %s\n", result.Path)
	text += fmt.Sprintf("Source: %s\n", result.Source)
	text += fmt.Sprintf("Pages: %d\n", result.Info.Pages)
	text += fmt.Sprintf("Size: %d bytes\n", result.Info.Size)
	text += fmt.Sprintf("Content Type: %s\n", result.Info.ContentType)
	text += fmt.Sprintf("Interactive fields: %d\n", result.AcroFormFields)

	for _, p := range result.Info.PageInfo {
		text += fmt.Sprintf("   Page %d: %.0fx%.0f pt, text layer: %t, images: %d\n",
			p.Index+1, p.Width, p.Height, p.HasText, p.ImageCount)
	}

	switch result.Info.ContentType {
	case document.ContentScannedImages:
		text += "\n🔍 This form looks scanned: its text cannot be read directly.\n"
	case document.ContentNone:
		text += "\n⚠️  WARNING: This form has no readable text or images.\n"
	}

	text += fmt.Sprintf("\nSuggested detector: %s\n", result.Suggested)
	if result.Hint != "" {
		text += result.Hint + "\n"
	}
	return text
}

func formatRasterizeResult(result *formfill.RasterizeResult) string {
	text := fmt.Sprintf("Rendered %d of %d page(s) of %s\n", len(result.Pages), result.TotalPages, result.Path)
	for _, p := range result.Pages {
		text += fmt.Sprintf("   Page %d: %dx%d px (%.0fx%.0f pt)\n",
			p.Index+1, p.Width, p.Height, p.PointWidth, p.PointHeight)
	}
	if result.Truncated > 0 {
		text += fmt.Sprintf("\n⚠️  %d page(s) beyond the page limit were not rendered\n", result.Truncated)
	}
	for _, f := range result.Failed {
		text += fmt.Sprintf("⚠️  Page %d failed to render: %s\n", f.Index+1, f.Error)
	}
	return text
}

func formatDetectResult(result *formfill.DetectResult) string {
	r := result.Report
	text := fmt.Sprintf("Detected %d field(s) in %s with the %s detector\n", len(result.Fields), result.Path, r.Detector)
	text += fmt.Sprintf("Pages attempted: %d\n", r.PagesAttempted)
	if r.Excluded > 0 {
		text += fmt.Sprintf("Signature lines excluded: %d\n", r.Excluded)
	}
	if r.Dropped > 0 {
		text += fmt.Sprintf("Items dropped for unusable boxes: %d\n", r.Dropped)
	}
	for _, f := range r.Failed {
		text += fmt.Sprintf("⚠️  Page %d failed after %d attempt(s): %s\n", f.PageIndex+1, f.Attempts, f.Error)
	}
	if result.SessionID != "" {
		text += fmt.Sprintf("\nSaved as session: %s\n", result.SessionID)
	}
	text += "\nFields:\n" + jsonBlock(result.Fields)
	return text
}

func formatFillResult(result *formfill.FillResult) string {
	text := fmt.Sprintf("Filled form written to: %s\n", result.OutputPath)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += result.Summary + "\n"

	for _, skip := range result.Report.Skipped {
		text += fmt.Sprintf("   Skipped %s (%q) on page %d: %s\n", skip.FieldID, skip.Label, skip.PageIndex+1, skip.Reason)
	}
	return text
}

func formatSessionResult(heading string, result *formfill.SessionResult) string {
	text := fmt.Sprintf("%s: %s\n", heading, result.ID)
	if result.Name != "" {
		text += fmt.Sprintf("Name: %s\n", result.Name)
	}
	text += fmt.Sprintf("Step: %s\n", result.Step)
	text += fmt.Sprintf("Progress: %d of %d answered\n", result.Progress.Answered, result.Progress.Total)
	if n := len(result.Progress.MissingRequired); n > 0 {
		text += fmt.Sprintf("Required fields still open: %d\n", n)
	}
	if !result.HasSource {
		text += "No document stored; pass a path when filling.\n"
	}

	if result.Next != "" {
		text += fmt.Sprintf("\nNext question: %s\n", result.Next)
	} else {
		text += "\n✅ Every question is answered.\n"
	}
	text += "\nFields:\n" + jsonBlock(result.Fields)
	return text
}

func formatEditFieldResult(result *formfill.EditFieldResult) string {
	var text string
	switch {
	case result.Field == nil:
		text = "Field deleted\n"
	case result.Op == formfill.EditAdd:
		text = fmt.Sprintf("Field added: %s (%q) on page %d at %s\n",
			result.Field.ID, result.Field.Label, result.Field.PageIndex+1, result.Field.Rect)
	default:
		text = fmt.Sprintf("Field %s now at %s\n", result.Field.ID, result.Field.Rect)
	}
	return text + "\n" + formatSessionResult("Session", result.Session)
}

func formatListSessionsResult(result *formfill.ListSessionsResult) string {
	if result.TotalCount == 0 {
		return fmt.Sprintf("No saved sessions in %s", result.Directory)
	}

	text := fmt.Sprintf("Found %d session(s) in %s\n\n", result.TotalCount, result.Directory)
	for i, s := range result.Sessions {
		text += fmt.Sprintf("%d. %s", i+1, s.ID)
		if s.Name != "" {
			text += fmt.Sprintf(" (%s)", s.Name)
		}
		text += "\n"
		text += fmt.Sprintf("   Step: %s, answered %d of %d, %d page image(s)\n", s.Step, s.Answered, s.Fields, s.Pages)
		text += fmt.Sprintf("   Updated: %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return text
}

func formatSearchResult(result *formfill.SearchResult) string {
	text := fmt.Sprintf("Found %d form(s) in directory: %s\n", result.TotalCount, result.Directory)
	if result.Query != "" {
		text += fmt.Sprintf("Search query: %s\n", result.Query)
	}
	text += "\nFiles:\n"

	for i, file := range result.Files {
		text += fmt.Sprintf("%d. %s\n", i+1, file.Name)
		text += fmt.Sprintf("   Path: %s\n", file.Path)
		text += fmt.Sprintf("   Size: %d bytes\n", file.Size)
		text += fmt.Sprintf("   Modified: %s\n", file.ModifiedTime)
		if i < len(result.Files)-1 {
			text += "\n"
		}
	}
	return text
}

func formatServerInfoResult(result *formfill.ServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Form Directory: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("💾 Session Directory: %s\n", result.SessionDirectory)
	text += fmt.Sprintf("🔎 Default Detector: %s\n", result.Detector)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	if c := result.RenderCache; c != nil {
		text += fmt.Sprintf("🗂️  Render Cache: %d/%d entries, %.1f%% hit rate\n", c.Size, c.Capacity, c.HitRate)
	}
	text += "\n"

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("📂 Directory Contents (%d forms found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= maxListedFiles {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-maxListedFiles)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "📂 Directory Contents: No forms found in the form directory\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	if len(result.SupportedFormats) > 0 {
		text += "\n🖼️  Supported Formats:\n"
		for _, format := range result.SupportedFormats {
			text += fmt.Sprintf("  • %s\n", format)
		}
	}

	text += "\n" + result.UsageGuidance
	return text
}

// jsonBlock renders v as indented JSON for the model to copy from
func jsonBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("(unavailable: %v)\n", err)
	}
	return string(data) + "\n"
}
