package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listActiveOnly bool

var listChatsCmd = &cobra.Command{
	Use:   "list-chats",
	Short: "List monitored chats",
	Long: `Lists the chats in the database with their type, whether they are active
(active chats are included in the batch) and when they were last updated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		chats, err := a.repo.ListChats(cmd.Context(), listActiveOnly)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing chats: %v\n", err)
			os.Exit(exitFatal)
		}

		if len(chats) == 0 {
			fmt.Fprintln(os.Stdout, "No chats found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTYPE\tACTIVE\tUPDATED")
		for _, c := range chats {
			title := c.Title
			if title == "" {
				title = "-"
			}
			chatType := c.ChatType
			if chatType == "" {
				chatType = "-"
			}
			active := "no"
			if c.Active {
				active = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, title, chatType, active, c.UpdatedAt.UTC().Format("2006-01-02 15:04"))
		}
		w.Flush()

		fmt.Fprintf(os.Stdout, "\n%d chats listed.\n", len(chats))
		return nil
	},
}

func init() {
	listChatsCmd.Flags().BoolVar(&listActiveOnly, "active", false, "Only list active chats")
	rootCmd.AddCommand(listChatsCmd)
}
