package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/ponumber"
	"github.com/sells-group/einvoice-cli/internal/report"
)

type classifyOutput struct {
	UUID           string           `json:"uuid"`
	Issuer         string           `json:"issuer"`
	Type           string           `json:"type"`
	Classification string           `json:"classification"`
	Reference      string           `json:"reference"`
	Outcome        ponumber.Outcome `json:"outcome"`
	Tokens         []string         `json:"tokens"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <invoice.json>",
	Short: "Resolve the purchase order reference of one downloaded invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issuer, _ := cmd.Flags().GetString("issuer")
		status, _ := cmd.Flags().GetString("status")

		resolver, err := initResolver()
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "classify: read %s", args[0])
		}
		return classify(cmd.OutOrStdout(), resolver, raw, issuer, status)
	},
}

func classify(out io.Writer, resolver *ponumber.Resolver, raw []byte, issuer, status string) error {
	doc, err := model.ParseDocument(raw)
	if err != nil {
		return eris.Wrap(err, "classify")
	}
	name := report.IssuerName(model.IssuerRecord{IssuerName: issuer}, doc)
	res := resolver.Resolve(doc, name, status)

	o := classifyOutput{
		UUID:           doc.UUID,
		Issuer:         name,
		Type:           doc.DocumentType(),
		Classification: res.Classification.String(),
		Reference:      res.Reference,
		Outcome:        res.Outcome,
		Tokens:         res.Tokens,
	}
	if o.Tokens == nil {
		o.Tokens = []string{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(o)
}

func init() {
	classifyCmd.Flags().String("issuer", "", "issuer name override (as the portal index would supply)")
	classifyCmd.Flags().String("status", "", "portal status override (Valid, Cancelled, Rejected)")
	rootCmd.AddCommand(classifyCmd)
}
