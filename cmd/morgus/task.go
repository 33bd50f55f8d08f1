package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"morgus/internal/agent/ports"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit and inspect tasks on a running morgus server",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new task",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		model, _ := cmd.Flags().GetString("model")
		if title == "" || description == "" {
			return fmt.Errorf("--title and --description are required")
		}

		var task ports.Task
		err := apiCall(http.MethodPost, "/tasks", map[string]string{
			"title":       title,
			"description": description,
			"model":       model,
		}, &task)
		if err != nil {
			return err
		}

		color.Green("Task submitted: %s", task.ID)
		fmt.Printf("  Title:  %s\n  Status: %s\n", task.Title, task.Status)
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task's status and phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var task ports.Task
		if err := apiCall(http.MethodGet, "/tasks/"+args[0], nil, &task); err != nil {
			return err
		}

		fmt.Printf("Task:   %s\n", task.ID)
		fmt.Printf("Title:  %s\n", task.Title)
		fmt.Printf("Phase:  %s\n", task.Phase)
		fmt.Printf("Status: %s\n", colorStatus(task.Status))
		return nil
	},
}

var taskStepsCmd = &cobra.Command{
	Use:   "steps <task-id>",
	Short: "Show a task's step log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload struct {
			Steps []ports.TaskStep `json:"steps"`
		}
		if err := apiCall(http.MethodGet, "/tasks/"+args[0]+"/steps", nil, &payload); err != nil {
			return err
		}

		for _, step := range payload.Steps {
			header := fmt.Sprintf("[%s] %s %s", step.CreatedAt.Format(time.TimeOnly), step.Phase, step.Kind)
			color.Cyan(header)
			if step.Content != "" {
				fmt.Println(indent(step.Content, "  "))
			}
		}
		return nil
	},
}

var taskAnswerCmd = &cobra.Command{
	Use:   "answer <task-id> <answer>",
	Short: "Answer a task's pending question and resume it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer := strings.Join(args[1:], " ")
		var resp map[string]any
		err := apiCall(http.MethodPost, "/tasks/"+args[0]+"/answer",
			map[string]string{"answer": answer}, &resp)
		if err != nil {
			return err
		}
		color.Green("Answer recorded, task re-queued")
		return nil
	},
}

func init() {
	taskSubmitCmd.Flags().String("title", "", "Task title")
	taskSubmitCmd.Flags().String("description", "", "Task goal description")
	taskSubmitCmd.Flags().String("model", "", "Model override for this task")

	taskCmd.AddCommand(taskSubmitCmd, taskStatusCmd, taskStepsCmd, taskAnswerCmd)
	rootCmd.AddCommand(taskCmd)
}

func apiCall(method, path string, body any, out any) error {
	base := strings.TrimRight(viper.GetString("server"), "/")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func colorStatus(status string) string {
	switch status {
	case ports.StatusCompleted:
		return color.GreenString(status)
	case ports.StatusError:
		return color.RedString(status)
	case ports.StatusRunning:
		return color.CyanString(status)
	case ports.StatusWaitingForInput:
		return color.YellowString(status)
	default:
		return status
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
