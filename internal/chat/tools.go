package chat

import (
	"fmt"
)

// toolDisplayNames maps agent tool names to the labels shown while a call is
// pending.
var toolDisplayNames = map[string]string{
	"google_search":       "Searching the web...",
	"design_research":     "Designing research plan...",
	"start_collection":    "Starting data collection...",
	"get_progress":        "Checking progress...",
	"get_insights":        "Analyzing collected data...",
	"enrich_collection":   "Enriching posts...",
	"refresh_engagements": "Refreshing engagement data...",
	"cancel_collection":   "Cancelling collection...",
}

// ToolDisplayText returns the pending label for a tool, with a generic
// fallback for tools the gateway has no mapping for.
func ToolDisplayText(name string) string {
	if text, ok := toolDisplayNames[name]; ok {
		return text
	}
	return fmt.Sprintf("Running %s...", name)
}

func resultSucceeded(result map[string]any) bool {
	status, _ := result["status"].(string)
	return status == "success"
}

// IsResearchDesignResult reports whether a tool result carries a collection
// configuration proposed by the research designer.
func IsResearchDesignResult(toolName string, result map[string]any) bool {
	if toolName != "design_research" || !resultSucceeded(result) {
		return false
	}
	return result["config"] != nil
}

// IsInsightResult reports whether a tool result carries an insight narrative.
func IsInsightResult(toolName string, result map[string]any) bool {
	if toolName != "get_insights" || !resultSucceeded(result) {
		return false
	}
	narrative, _ := result["narrative"].(string)
	return narrative != ""
}

// IsProgressResult reports whether a tool result is a collection progress
// snapshot.
func IsProgressResult(toolName string, result map[string]any) bool {
	return toolName == "get_progress" && resultSucceeded(result)
}

// IsDataExportResult reports whether a tool result carries exported post rows.
func IsDataExportResult(toolName string, result map[string]any) bool {
	if toolName != "export_data" || !resultSucceeded(result) {
		return false
	}
	_, ok := result["rows"].([]any)
	return ok
}
