package cli

import (
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"organizer/client"
	"organizer/domain"
)

// View is the subset of the engine needed to render the tree.
type View interface {
	RootItems() []domain.Item
	FolderItems(folderID string) []domain.Item
	Folders() []domain.Folder
}

// TreeFolder is one folder with its ordered items.
type TreeFolder struct {
	domain.Folder
	Items []domain.Item `json:"items"`
}

// Tree is the rendered hierarchy: folders first, then top-level items.
type Tree struct {
	Folders []TreeFolder  `json:"folders"`
	Items   []domain.Item `json:"items"`
}

// BuildTree groups the view into its display order.
func BuildTree(v View) Tree {
	t := Tree{Folders: []TreeFolder{}, Items: v.RootItems()}
	for _, f := range v.Folders() {
		t.Folders = append(t.Folders, TreeFolder{Folder: f, Items: v.FolderItems(f.ID)})
	}
	return t
}

// String renders the tree. Closed folders only show their item count.
func (t Tree) String() string {
	var b strings.Builder
	for _, f := range t.Folders {
		if f.IsOpen {
			fmt.Fprintf(&b, "▾ %s [%s]\n", f.Name, f.ID)
			for _, it := range f.Items {
				fmt.Fprintf(&b, "    %s %s [%s]\n", it.Icon, it.Title, it.ID)
			}
			continue
		}
		fmt.Fprintf(&b, "▸ %s [%s] (%d items)\n", f.Name, f.ID, len(f.Items))
	}
	for _, it := range t.Items {
		fmt.Fprintf(&b, "%s %s [%s]\n", it.Icon, it.Title, it.ID)
	}
	if b.Len() == 0 {
		return "(empty)"
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print folders and items in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd, client.Options{})
			if err != nil {
				return err
			}
			tree := BuildTree(s.engine)
			return s.out.Success(tree, tree.String())
		},
	}
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow live changes and reprint the tree after each one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := newFormatter(rootOpts, cmd)
			h := client.NewHTTP(rootOpts.Server, rootOpts.Timeout)
			var (
				mu     sync.Mutex
				engine *client.Engine
				last   string
			)
			render := func() {
				mu.Lock()
				defer mu.Unlock()
				tree := BuildTree(engine)
				text := tree.String()
				if text == last {
					return
				}
				last = text
				if rootOpts.Format == "text" {
					text += "\n"
				}
				_ = out.Success(tree, text)
			}
			engine = client.NewEngine(h, client.Options{
				OnChange: render,
				OnError: func(err error) {
					fmt.Fprintf(out.ErrWriter, "warning: %v\n", err)
				},
			})
			return engine.Run(ctx, h)
		},
	}
}
