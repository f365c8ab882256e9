package cmd

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/olivermeyer777/post-translatorv1/internal/language"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages and voices",
	Run: func(cmd *cobra.Command, args []string) {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.Style().Format.Header = text.FormatTitle

		t.AppendHeader(table.Row{"Code", "Language", "Greeting"})
		for _, lang := range language.Supported {
			t.AppendRow(table.Row{lang.Code, lang.Name, lang.Greeting})
		}
		t.Render()

		cmd.Printf("\nVoices: %s\n", strings.Join(language.Voices, ", "))
		cmd.Printf("Defaults: agent=%s customer=%s\n",
			language.DefaultAgentCode, language.DefaultCustomerCode)
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
