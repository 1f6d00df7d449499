package tools

// Tool names.
const (
	ToolReadFile    = "read_file"
	ToolWriteFile   = "write_file"
	ToolEditFile    = "edit_file"
	ToolListFiles   = "list_files"
	ToolSearchFiles = "search_files"
	ToolExecute     = "execute"

	// Gated planning tools.
	ToolAskFollowup = "ask_followup"
	ToolApprove     = "approve"

	// Terminal tools.
	ToolSubmitPlan = "submit_plan"
	ToolDone       = "done"
)

// Result strings the model sees.
const (
	ResultFileNotFound  = "FILE_NOT_FOUND"
	ResultTimeout       = "TIMEOUT"
	ResultFileWritten   = "File written successfully"
	ResultFileEdited    = "File edited successfully"
	ResultNoChanges     = "Warning: No changes made to the file"
	ResultNoFiles       = "No files found"
	ResultNoMatches     = "No matches found"
	ResultPlanApproved  = "Plan approved"
	ResultPlanSubmitted = "Plan submitted"
	ErrorPrefix         = "ERROR: "
)

// MaxFollowupQuestions bounds one ask_followup call.
const MaxFollowupQuestions = 5

// Tool sets per agent.
//
//nolint:gochecknoglobals // read-only tool allow-lists
var (
	// PlanningTools are the planning agent's tools; submit_plan is its terminal tool.
	PlanningTools = []string{ToolAskFollowup, ToolApprove, ToolSubmitPlan}

	// InitializerTools bootstrap a project from the rendered specification.
	InitializerTools = []string{ToolReadFile, ToolWriteFile, ToolExecute, ToolDone}

	// CodingTools implement one task at a time.
	CodingTools = []string{ToolReadFile, ToolWriteFile, ToolExecute, ToolEditFile, ToolListFiles, ToolSearchFiles, ToolDone}

	// ExcludedDirs are skipped by list_files and search_files.
	ExcludedDirs = []string{".git", ".venv", "__pycache__", "node_modules"}
)
