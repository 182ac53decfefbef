package cli

import (
	"github.com/urfave/cli/v2"

	"go.viam.com/camisp/config"
)

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context) error {
	data, err := config.SchemaJSON()
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", data)
	return nil
}
