// Package orchestrator drives tasks through the five-phase lifecycle with a
// bounded agent loop per phase.
package orchestrator

import (
	"fmt"
	"strings"

	"morgus/internal/agent/ports"
)

// Phase names in execution order.
const (
	PhaseResearch = "RESEARCH"
	PhasePlan     = "PLAN"
	PhaseBuild    = "BUILD"
	PhaseExecute  = "EXECUTE"
	PhaseFinalize = "FINALIZE"
)

// phaseOrder is the fixed forward-only phase sequence.
var phaseOrder = []string{PhaseResearch, PhasePlan, PhaseBuild, PhaseExecute, PhaseFinalize}

const systemPrompt = `You are Morgus, an autonomous AI agent that takes high-level goals and delivers complete, working solutions.

Your capabilities include:
- Analyzing requirements and gathering information
- Creating detailed implementation plans
- Writing and debugging code
- Executing commands and running tests
- Deploying applications to production
- Managing version control with git

You operate in a structured 5-phase workflow:

1. RESEARCH: Gather information, understand requirements, explore existing solutions
2. PLAN: Break down the goal into actionable sub-tasks with clear steps
3. BUILD: Generate code, configuration files, and other artifacts
4. EXECUTE: Test the solution and deploy it to production
5. FINALIZE: Clean up, commit to git, and report results

Security rules:
- Only use provided tools - never attempt to access the host system directly
- All file operations are restricted to the project directory
- Shell commands are validated against a whitelist
- Never expose or log API keys or secrets
- If a command might be dangerous, ask the user for confirmation

Best practices:
- Think step-by-step and explain your reasoning
- Test code before deploying
- Handle errors gracefully and retry when appropriate
- Keep the user informed of progress
- Commit code with clear, descriptive messages
- Clean up temporary files and resources

When you receive a task, analyze it carefully, devise a plan, and execute it autonomously. Use tools as needed and provide clear updates on your progress.`

var phaseObjectives = map[string]string{
	PhaseResearch: `
Your goal in this phase is to gather information and understand the requirements.

Actions to take:
1. Search for relevant information, libraries, frameworks, or examples
2. Fetch documentation or tutorials if needed
3. Summarize your findings and identify the best approach

Use the search_web and fetch_url tools to gather information.
When you have enough information, explain your findings and move to the next phase.
`,
	PhasePlan: `
Your goal in this phase is to create a detailed implementation plan.

Actions to take:
1. Break down the task into concrete sub-tasks
2. Identify required files, dependencies, and configurations
3. Outline the step-by-step implementation approach
4. Consider potential challenges and how to address them

Provide a clear, numbered plan that you will follow in the BUILD phase.
`,
	PhaseBuild: `
Your goal in this phase is to implement the solution.

Actions to take:
1. Initialize project structure (git, package.json, etc.)
2. Create all necessary files and write code
3. Install dependencies
4. Test code as you go (run builds, check for errors)
5. Fix any issues that arise

Use file_write, shell_exec, and git tools to build the project.
Iterate until the solution is complete and working.
`,
	PhaseExecute: `
Your goal in this phase is to test and deploy the solution.

Actions to take:
1. Run tests or verify the application works
2. Build the production version if needed
3. Deploy to Cloudflare Pages using cloudflare_deploy
4. Verify the deployment is successful
5. Save the deployment URL as an artifact

Use shell_exec for testing and cloudflare_deploy for deployment.
`,
	PhaseFinalize: `
Your goal in this phase is to wrap up the task.

Actions to take:
1. Commit all changes to git
2. Push to remote repository if configured
3. Summarize what was accomplished
4. Report final results to the user

Use git tools to commit and push code.
Use notify_user to send a final summary.
`,
}

// buildPhasePrompt renders the entry prompt for a phase.
func buildPhasePrompt(task *ports.Task, phase string) string {
	base := fmt.Sprintf("Task: %s\nDescription: %s\n\nCurrent Phase: %s\n",
		task.Title, task.Description, phase)
	return base + phaseObjectives[phase]
}

// isPhaseComplete tests a text-only reply for completion indicators. The
// match is a deliberate case-insensitive substring check; a reply that merely
// mentions one of these phrases in passing also ends the phase.
func isPhaseComplete(content, phase string) bool {
	lower := strings.ToLower(content)
	phrases := []string{
		"phase complete",
		"moving to next phase",
		"ready to proceed",
		strings.ToLower(phase) + " is complete",
		"finished with",
		"completed successfully",
	}
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
