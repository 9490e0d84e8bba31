package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/pkg/models"
)

var (
	addNoteProject   string
	addNoteTags      []string
	addNotePriority  string
	addNoteDecompose bool

	notesProject string
	notesStatus  string
	notesSearch  string
)

var addNoteCmd = &cobra.Command{
	Use:   "add-note [text...]",
	Short: "Add a note to the knowledge store",
	Long: `Add a note to the knowledge store.

The text may carry inline markers: #project sets the project, @tag adds a
tag and @low, @medium or @high set the priority. With no arguments the
note is read from stdin.

Examples:
  swarm add-note "Investigate flaky deploys #infra @ci"
  swarm add-note --decompose "Fix login redirect @high"
  cat idea.md | swarm add-note --project web`,
	RunE: runAddNote,
}

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List or search notes",
	RunE:  runNotes,
}

var decomposeCmd = &cobra.Command{
	Use:   "decompose <note-id>",
	Short: "Register the task chain of a note",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecompose,
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects with their note and task counts",
	RunE:  runProjects,
}

func init() {
	addNoteCmd.Flags().StringVarP(&addNoteProject, "project", "p", "", "Project id (overrides a #project marker)")
	addNoteCmd.Flags().StringSliceVarP(&addNoteTags, "tag", "t", nil, "Extra tags")
	addNoteCmd.Flags().StringVar(&addNotePriority, "priority", "", "Priority: low, medium or high")
	addNoteCmd.Flags().BoolVarP(&addNoteDecompose, "decompose", "d", false, "Register the task chain right away")

	notesCmd.Flags().StringVarP(&notesProject, "project", "p", "", "Only notes of this project")
	notesCmd.Flags().StringVar(&notesStatus, "status", "", "Only notes with this status (pending, completed)")
	notesCmd.Flags().StringVarP(&notesSearch, "search", "s", "", "Search titles, bodies and tags")
}

func runAddNote(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	inline := knowledge.ParseInline(text)
	if inline.Content == "" {
		return fmt.Errorf("note text is empty")
	}
	meta := inline.Meta()
	if addNoteProject != "" {
		meta.Project = addNoteProject
	}
	meta.Tags = append(meta.Tags, addNoteTags...)
	if addNotePriority != "" {
		p := models.Priority(strings.ToLower(addNotePriority))
		if !p.Valid() {
			return fmt.Errorf("invalid priority %q", addNotePriority)
		}
		meta.Priority = p
	}

	a, err := newApp(cfg, appOptions{owner: addNoteDecompose})
	if err != nil {
		return err
	}
	defer a.close()

	note, err := a.store.AddNote(inline.Content, meta)
	if err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("added %s %q (project %s)", note.ID, note.Title, note.Project), color.FgGreen)

	if !addNoteDecompose {
		return nil
	}
	tasks, err := a.orch.Decompose(cmd.Context(), note.ID)
	if err != nil {
		return fmt.Errorf("decompose %s: %w", note.ID, err)
	}
	printTaskChain(tasks)
	return nil
}

func runNotes(cmd *cobra.Command, args []string) error {
	store, err := knowledge.Open(cfg.KnowledgeRoot())
	if err != nil {
		return err
	}

	if notesSearch != "" {
		results, err := store.SearchNotes(notesSearch)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matching notes.")
			return nil
		}
		for _, r := range results {
			var where []string
			if r.TitleMatch {
				where = append(where, "title")
			}
			if r.BodyMatch {
				where = append(where, "body")
			}
			if r.TagMatch {
				where = append(where, "tags")
			}
			fmt.Printf("%-40s %-10s %s (%s)\n", r.Note.ID, r.Note.Status, r.Note.Title, strings.Join(where, ", "))
		}
		return nil
	}

	filter := knowledge.NoteFilter{Project: notesProject, Status: models.NoteStatus(notesStatus)}
	if notesStatus != "" && !filter.Status.Valid() {
		return fmt.Errorf("invalid status %q", notesStatus)
	}
	notes, err := store.ListNotes(filter)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Println("No notes.")
		return nil
	}
	for _, n := range notes {
		fmt.Printf("%-40s %-10s %-7s %-12s %s\n", n.ID, n.Status, n.Priority, n.Project, n.Title)
	}
	return nil
}

func runDecompose(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, appOptions{owner: true})
	if err != nil {
		return err
	}
	defer a.close()

	tasks, err := decomposeOnce(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	printTaskChain(tasks)
	return nil
}

// decomposeOnce refuses notes that already have a chain.
func decomposeOnce(ctx context.Context, a *app, noteID string) ([]*models.Task, error) {
	if existing := a.engine.TasksForNote(noteID); len(existing) > 0 {
		return nil, fmt.Errorf("note %s already has %d tasks", noteID, len(existing))
	}
	return a.orch.Decompose(ctx, noteID)
}

func printTaskChain(tasks []*models.Task) {
	for i, t := range tasks {
		arrow := "  "
		if i > 0 {
			arrow = "└▸"
		}
		fmt.Printf("  %s %-9s %-8s %s\n", arrow, engine.ShortID(t.ID), t.Phase, t.Title)
	}
	printStatus("✓", fmt.Sprintf("%d tasks registered", len(tasks)), color.FgGreen)
}

func runProjects(cmd *cobra.Command, args []string) error {
	store, err := knowledge.Open(cfg.KnowledgeRoot())
	if err != nil {
		return err
	}
	projects, err := store.ListProjects()
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects.")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%-20s %3d notes %4d tasks  %s\n", p.ID, len(p.Notes), len(p.Tasks), p.Name)
	}
	return nil
}
