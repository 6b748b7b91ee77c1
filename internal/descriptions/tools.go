package descriptions

import "sort"

// Tool names registered by the MCP server
const (
	ToolInspect       = "form_inspect"
	ToolRasterize     = "form_rasterize"
	ToolDetect        = "form_detect"
	ToolFill          = "form_fill"
	ToolAnswer        = "form_answer"
	ToolFieldEdit     = "form_field_edit"
	ToolSessionSave   = "form_session_save"
	ToolSessionLoad   = "form_session_load"
	ToolSessionList   = "form_session_list"
	ToolSessionDelete = "form_session_delete"
	ToolSearch        = "form_search_directory"
	ToolServerInfo    = "form_server_info"
)

// Tool descriptions with practical examples and use cases

const (
	InspectDescription = `Look at a form before filling it: page count and sizes, whether it has a text layer, and whether it carries interactive (AcroForm) fields.

**When to use:** First step for any new form, to decide which detector to run.

**Why it's useful:** Scanned forms need the vision detector; digital forms with AcroForm widgets can be read exactly and instantly.

**Examples:**
• "Inspect w9.pdf and tell me how to find its fields"
• "Is application-scan.png a scanned form?"

**Common workflows:**
1. New form: form_inspect → form_detect with the suggested detector → form_answer → form_fill

**Best practices:** Follow suggested_detector in the response. Images (PNG, JPEG, GIF, WebP) are converted to a one-page PDF automatically.`

	RasterizeDescription = `Render the pages of a form to JPEG images.

**When to use:** Need to see a page, show it to a user, or check where detected fields landed.

**Why it's useful:** Pages are rendered at a fixed scale with an upper page limit; the response reports pages beyond the limit and pages that failed to render.

**Examples:**
• "Show me page 1 of lease.pdf"
• "Render intake-form.pdf so I can review the layout"

**Best practices:** Set include_images only when the images are needed; they are large.`

	DetectDescription = `Find the fillable fields of a form.

**When to use:** After inspecting a form, to build the list of questions to answer.

**Why it's useful:** Three detectors are available. 'acroform' reads the form's own interactive fields. 'vision' asks a multimodal model to locate fields on each rendered page, with a timeout and retries per page. 'none' skips detection for forms whose fields are supplied by hand.

**Examples:**
• "Detect the fields of w9.pdf and save them as session w9-2024"
• "Find the fields in scanned-claim.pdf using the vision detector"

**Common workflows:**
1. form_detect with session_id → form_answer for each question → form_fill with the session

**Best practices:** Signature lines are never returned as fields; sign the printed form by hand. Pages that fail detection are listed in the report and do not fail the whole call unless no field at all was found.`

	FillDescription = `Write answers onto a copy of the form and save it as a new PDF.

**When to use:** All answers are recorded and the user wants the finished document.

**Why it's useful:** Text is wrapped inside each field box at a fixed font size; text that does not fit is cut at the bottom of the page and reported, never silently dropped. Ticked checkboxes are marked with an X.

**Examples:**
• "Fill w9.pdf using session w9-2024"
• "Write these values into intake.pdf and save it as intake_done.pdf"

**Best practices:** Check the report for skipped fields and truncated lines. Output paths are confined to the configured directory.`

	AnswerDescription = `Record the answer to one question of a saved session.

**When to use:** Walking a user through a form one question at a time, by voice or by typing.

**Why it's useful:** Keeps the session up to date after every answer and returns the next unanswered question, ready to read out ("Question 3A. Business name.").

**Examples:**
• "The answer to question 2 is Jane Doe"
• "Append 'Springfield Illinois' to the address" (append joins dictated phrases with a single space)

**Best practices:** Checkbox answers must be "true" or "false". Set format to tidy SSNs, phone numbers, ZIP codes and dictated email addresses.`

	FieldEditDescription = `Move, resize, add or delete one field of a saved session.

**When to use:** A detected field sits in the wrong place, is too small for its answer, is missing, or is not a real field.

**Why it's useful:** Fixes the layout without resending every field. Moves and resizes take the pointer drag in pixels as seen on a page render, so a drag in any viewer maps straight onto the form.

**Examples:**
• "Move the SSN box 40 pixels to the right" (op move, dx 40, with the render's width and height)
• "Make the address field taller" (op resize, negative dy drags the top edge up)
• "Add a Signature field at the bottom of page 2" (op add, rect in 0-1000 units, page_index 1)
• "That checkbox isn't a field, remove it" (op delete)

**Best practices:** Resizing drags the top-right corner and keeps every field at least 20 units wide and tall. New fields must be larger than 10 units on both axes.`

	SessionSaveDescription = `Save the fields and answers of a form so work can be resumed later.

**When to use:** After editing fields or answers outside form_answer, or to attach the source document and page renders to a session.

**Best practices:** Session ids use letters, digits, '-' and '_' only. The stored document is kept when a later save omits the path.`

	SessionLoadDescription = `Resume a saved session: fields, answers, progress and the next open question.

**When to use:** A user returns to a form they started earlier.`

	SessionListDescription = `List saved sessions with their progress, most recent first.

**When to use:** A user wants to see which forms they have in progress.`

	SessionDeleteDescription = `Delete a saved session.

**When to use:** A form is finished or abandoned. Deleting an unknown session succeeds.`

	SearchDescription = `Find forms (PDFs and images) in the configured directory, with optional fuzzy matching on the file name.

**When to use:** The user names a form loosely ("my tax form") and you need its path.`

	ServerInfoDescription = `Get server information, available tools, forms in the configured directory, and usage guidance.

**When to use:** At the start of a conversation, to learn what the server can do and which forms are available.`
)

// ToolDescriptions maps tool names to their comprehensive descriptions
var ToolDescriptions = map[string]string{
	ToolInspect:       InspectDescription,
	ToolRasterize:     RasterizeDescription,
	ToolDetect:        DetectDescription,
	ToolFill:          FillDescription,
	ToolAnswer:        AnswerDescription,
	ToolFieldEdit:     FieldEditDescription,
	ToolSessionSave:   SessionSaveDescription,
	ToolSessionLoad:   SessionLoadDescription,
	ToolSessionList:   SessionListDescription,
	ToolSessionDelete: SessionDeleteDescription,
	ToolSearch:        SearchDescription,
	ToolServerInfo:    ServerInfoDescription,
}

// GetToolDescription returns the comprehensive description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns all tool names in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
