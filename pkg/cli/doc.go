/*
Package cli provides helpers shared by the policysync commands.

Output Formatting:

Commands print their results as text, JSON or YAML, selected with the
--output flag:

	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, bundle)

Errors:

Configuration problems are returned as *ConfigError and exit with
ExitConfig; every other failure exits with ExitFailure:

	os.Exit(cli.ExitCode(err))

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
