package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"organizer/client"
	"organizer/domain"
)

func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an item or a folder",
	}

	var icon, folder string
	item := &cobra.Command{
		Use:   "item <title>",
		Short: "Append an item to the top level or to a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			it, err := s.engine.CreateItem(cmd.Context(), domain.NewItem{
				Title:     args[0],
				Icon:      icon,
				Container: containerArg(folder),
			})
			if err != nil {
				return s.out.Fail("add item", err)
			}
			return s.out.Success(it, fmt.Sprintf("created item %s at position %d in %s", it.ID, it.Order, it.Container))
		},
	}
	item.Flags().StringVar(&icon, "icon", "description", "icon name")
	item.Flags().StringVar(&folder, "folder", "", "folder id (default top level)")

	f := &cobra.Command{
		Use:   "folder <name>",
		Short: "Append a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			created, err := s.engine.CreateFolder(cmd.Context(), domain.NewFolder{Name: args[0]})
			if err != nil {
				return s.out.Fail("add folder", err)
			}
			return s.out.Success(created, fmt.Sprintf("created folder %s at position %d", created.ID, created.Order))
		},
	}

	cmd.AddCommand(item, f)
	return cmd
}

func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Reorder an item or a folder",
	}

	var to string
	var itemIndex int
	item := &cobra.Command{
		Use:   "item <id>",
		Short: "Move an item within its list or into another one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			dst := containerArg(to)
			if !dst.IsRoot() && !s.hasFolder(dst.FolderID()) {
				return s.out.Fail("move item", fmt.Errorf("folder %s: %w", dst.FolderID(), domain.ErrNotFound))
			}
			moved, err := s.engine.MoveItem(cmd.Context(), args[0], dst, indexArg(itemIndex))
			return moveResult(s, "move item", args[0], moved, err)
		},
	}
	item.Flags().StringVar(&to, "to", "root", `destination list: "root" or a folder id`)
	item.Flags().IntVar(&itemIndex, "index", -1, "destination position (default last)")

	var folderIndex int
	f := &cobra.Command{
		Use:   "folder <id>",
		Short: "Move a folder within the folder list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			moved, err := s.engine.MoveFolder(cmd.Context(), args[0], indexArg(folderIndex))
			return moveResult(s, "move folder", args[0], moved, err)
		},
	}
	f.Flags().IntVar(&folderIndex, "index", -1, "destination position (default last)")

	cmd.AddCommand(item, f)
	return cmd
}

type moveResponse struct {
	ID    string          `json:"id"`
	Moved bool            `json:"moved"`
	State domain.Snapshot `json:"state"`
}

func moveResult(s *session, op, id string, moved bool, err error) error {
	if err != nil {
		return s.out.Fail(op, err)
	}
	if !moved && !s.has(id) {
		return s.out.Fail(op, fmt.Errorf("%s: %w", id, domain.ErrNotFound))
	}
	text := id + " is already there"
	if moved {
		text = "moved " + id
	}
	return s.out.Success(moveResponse{ID: id, Moved: moved, State: s.engine.Snapshot()}, text)
}

func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Edit the title of an item or the name of a folder",
	}

	var icon string
	item := &cobra.Command{
		Use:   "item <id> <title>",
		Short: "Set an item's title and optionally its icon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			if !s.has(args[0]) {
				return s.out.Fail("rename item", fmt.Errorf("%s: %w", args[0], domain.ErrNotFound))
			}
			patch := domain.ItemPatch{Title: &args[1]}
			if cmd.Flags().Changed("icon") {
				patch.Icon = &icon
			}
			if err := s.engine.UpdateItem(cmd.Context(), args[0], patch); err != nil {
				return s.out.Fail("rename item", err)
			}
			return s.out.Success(map[string]string{"id": args[0]}, "updated item "+args[0])
		},
	}
	item.Flags().StringVar(&icon, "icon", "", "new icon name")

	f := &cobra.Command{
		Use:   "folder <id> <name>",
		Short: "Set a folder's name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			if !s.has(args[0]) {
				return s.out.Fail("rename folder", fmt.Errorf("%s: %w", args[0], domain.ErrNotFound))
			}
			if err := s.engine.UpdateFolder(cmd.Context(), args[0], domain.FolderPatch{Name: &args[1]}); err != nil {
				return s.out.Fail("rename folder", err)
			}
			return s.out.Success(map[string]string{"id": args[0]}, "updated folder "+args[0])
		},
	}

	cmd.AddCommand(item, f)
	return cmd
}

func NewToggleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <folder-id>",
		Short: "Open or close a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			if err := s.engine.ToggleFolder(cmd.Context(), args[0]); err != nil {
				return s.out.Fail("toggle folder", err)
			}
			for _, f := range s.engine.Folders() {
				if f.ID == args[0] {
					state := "closed"
					if f.IsOpen {
						state = "open"
					}
					return s.out.Success(f, fmt.Sprintf("folder %s is now %s", f.ID, state))
				}
			}
			return s.out.Success(map[string]string{"id": args[0]}, "folder "+args[0]+" was deleted meanwhile")
		},
	}
}

func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an item, or a folder together with its items",
	}

	item := &cobra.Command{
		Use:   "item <id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			if err := s.engine.DeleteItem(cmd.Context(), args[0]); err != nil {
				return s.out.Fail("delete item", err)
			}
			return s.out.Success(map[string]string{"id": args[0]}, "deleted item "+args[0])
		},
	}

	f := &cobra.Command{
		Use:   "folder <id>",
		Short: "Delete a folder and every item inside it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			n := len(s.engine.FolderItems(args[0]))
			if err := s.engine.DeleteFolder(cmd.Context(), args[0]); err != nil {
				return s.out.Fail("delete folder", err)
			}
			return s.out.Success(map[string]any{"id": args[0], "items": n},
				fmt.Sprintf("deleted folder %s and %d items", args[0], n))
		},
	}

	cmd.AddCommand(item, f)
	return cmd
}

func (s *session) has(id string) bool {
	snap := s.engine.Snapshot()
	for _, it := range snap.Items {
		if it.ID == id {
			return true
		}
	}
	for _, f := range snap.Folders {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (s *session) hasFolder(id string) bool {
	for _, f := range s.engine.Folders() {
		if f.ID == id {
			return true
		}
	}
	return false
}

// containerArg maps "", "root" and the root droppable id to the top level.
func containerArg(v string) domain.Container {
	if v == "" || v == client.RootDroppable {
		return domain.Root
	}
	return domain.InFolder(v)
}

// indexArg turns a negative index into "after the last element".
func indexArg(i int) int {
	if i < 0 {
		return math.MaxInt32
	}
	return i
}
