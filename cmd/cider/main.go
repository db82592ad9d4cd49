package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/cider"
	"github.com/polydawn/cider/catalog"
	"github.com/polydawn/cider/importer"
	"github.com/polydawn/cider/store"
	"github.com/polydawn/cider/warehouse"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

type baseCLI struct {
	Format               string // Output format, eg. json
	ReleaseComponentsCLI struct {
		Release string // Release entity name
		Version string // Release version
	}
	ComponentVersionsCLI struct {
		Components []string // Components to list; empty means all
	}
	ComponentToGitCLI struct {
		Component string // Component name
		Dest      string // Repository path to create
		NoBare    bool   // Create a repository with a working copy
	}
	ComponentsToGitsCLI struct {
		Dest   string // Directory to create the repositories under
		NoBare bool
	}
	ReleaseToGitCLI struct {
		Release string // Release entity name
		Dest    string // Repository path to create
		NoBare  bool
	}
}

func configureReleaseComponents(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("release", "Release entity name").
		Required().
		StringVar(&cli.ReleaseComponentsCLI.Release)
	cmd.Arg("version", "Release version").
		Required().
		StringVar(&cli.ReleaseComponentsCLI.Version)
}

func configureComponentVersions(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("component", "Components to list; all of them when omitted").
		StringsVar(&cli.ComponentVersionsCLI.Components)
}

func configureComponentToGit(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("component", "Component name").
		Required().
		StringVar(&cli.ComponentToGitCLI.Component)
	cmd.Arg("dest", "Repository path to create").
		Required().
		StringVar(&cli.ComponentToGitCLI.Dest)
	cmd.Flag("no-bare", "Create a repository with a working copy").
		BoolVar(&cli.ComponentToGitCLI.NoBare)
}

func configureComponentsToGits(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("dest", "Directory to create the repositories under").
		Required().
		StringVar(&cli.ComponentsToGitsCLI.Dest)
	cmd.Flag("no-bare", "Create repositories with working copies").
		BoolVar(&cli.ComponentsToGitsCLI.NoBare)
}

func configureReleaseToGit(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("release", "Release entity name").
		Required().
		StringVar(&cli.ReleaseToGitCLI.Release)
	cmd.Arg("dest", "Repository path to create").
		Required().
		StringVar(&cli.ReleaseToGitCLI.Dest)
	cmd.Flag("no-bare", "Create a repository with a working copy").
		BoolVar(&cli.ReleaseToGitCLI.NoBare)
}

/*
	Blocks until a sigint is received, then calls cancel.
*/
func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	cancel()
	close(signalChan)
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) cider.ExitCode {
	ctx, cancel := context.WithCancel(ctx)
	go CancelOnInterrupt(cancel)

	cli := baseCLI{}

	app := kingpin.New("cider", "Mirror opensource.apple.com releases into git repositories")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("format", "Output format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)

	appReleases := app.Command("releases", "list the published releases")

	appReleaseComponents := app.Command("release-components", "list the tarballs composing one release version")
	configureReleaseComponents(&cli, appReleaseComponents)

	appReleaseToGit := app.Command("release-to-git", "import every version of a release into a git repository")
	configureReleaseToGit(&cli, appReleaseToGit)

	appComponents := app.Command("components", "list the standalone components")

	appComponentVersions := app.Command("component-versions", "list the published versions of components")
	configureComponentVersions(&cli, appComponentVersions)

	appComponentToGit := app.Command("component-to-git", "import every version of a component into a git repository")
	configureComponentToGit(&cli, appComponentToGit)

	appComponentsToGits := app.Command("components-to-gits", "import every component into its own git repository")
	configureComponentsToGits(&cli, appComponentsToGits)

	var termErr error
	app.Terminate(func(status int) {
		termErr = fmt.Errorf("parsing error: %d\n", status)
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return cider.ExitUsage
	}
	if termErr != nil {
		fmt.Fprintln(stderr, termErr)
		return cider.ExitUsage
	}

	ctl := warehouse.NewController()
	cat := catalog.New(ctl)

	switch cmd {
	case appReleases.FullCommand():
		err = executeReleases(ctx, cli, cat, stdout)
	case appReleaseComponents.FullCommand():
		err = executeReleaseComponents(ctx, cli, cat, stdout)
	case appReleaseToGit.FullCommand():
		err = executeReleaseToGit(ctx, cli, cat, ctl)
	case appComponents.FullCommand():
		err = executeComponents(ctx, cli, cat, stdout)
	case appComponentVersions.FullCommand():
		err = executeComponentVersions(ctx, cli, cat, stdout)
	case appComponentToGit.FullCommand():
		err = executeComponentToGit(ctx, cli, cat, ctl)
	case appComponentsToGits.FullCommand():
		err = importer.AllComponentRepositories(ctx, cat, ctl, cli.ComponentsToGitsCLI.Dest, !cli.ComponentsToGitsCLI.NoBare)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return cider.CategoryExitCode(Category(err))
	}
	return cider.ExitSuccess
}

// serialize writes value to stdout in the selected format; the dumb
// format gets a caller-supplied plain text rendering.
func serialize(format string, stdout io.Writer, value interface{}, dumb func(io.Writer)) error {
	switch format {
	case FmtJson:
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stdout, catalog.Atlas)
		if err := marshaller.Marshal(value); err != nil {
			panic(err)
		}
		fmt.Fprintln(stdout)
		return nil
	case FmtDumb:
		dumb(stdout)
		return nil
	default:
		panic(fmt.Errorf("cider: invalid format %s", format))
	}
}

func executeReleases(ctx context.Context, cli baseCLI, cat *catalog.Catalog, stdout io.Writer) error {
	records, err := cat.Releases(ctx)
	if err != nil {
		return err
	}
	return serialize(cli.Format, stdout, records, func(w io.Writer) {
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Entity, r.Version, r.URL)
		}
	})
}

func executeReleaseComponents(ctx context.Context, cli baseCLI, cat *catalog.Catalog, stdout io.Writer) error {
	releases, err := cat.Releases(ctx)
	if err != nil {
		return err
	}
	var match *catalog.ReleaseRecord
	for i, r := range releases {
		if r.MatchesEntity(cli.ReleaseComponentsCLI.Release) && r.Version == cli.ReleaseComponentsCLI.Version {
			match = &releases[i]
			break
		}
	}
	if match == nil {
		return Errorf(cider.ErrUsage, "no release %q version %q in the catalog",
			cli.ReleaseComponentsCLI.Release, cli.ReleaseComponentsCLI.Version)
	}
	records, err := cat.ReleaseComponents(ctx, *match)
	if err != nil {
		return err
	}
	return serialize(cli.Format, stdout, records, func(w io.Writer) {
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\n", r.Component, r.URL)
		}
	})
}

func executeComponents(ctx context.Context, cli baseCLI, cat *catalog.Catalog, stdout io.Writer) error {
	names, err := cat.Components(ctx)
	if err != nil {
		return err
	}
	return serialize(cli.Format, stdout, names, func(w io.Writer) {
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
	})
}

func executeComponentVersions(ctx context.Context, cli baseCLI, cat *catalog.Catalog, stdout io.Writer) error {
	var all map[string][]catalog.ComponentRecord
	var err error
	if len(cli.ComponentVersionsCLI.Components) == 0 {
		all, err = cat.AllComponentVersions(ctx)
		if err != nil {
			return err
		}
	} else {
		all = map[string][]catalog.ComponentRecord{}
		for _, name := range cli.ComponentVersionsCLI.Components {
			records, err := cat.ComponentVersions(ctx, name)
			if err != nil {
				return err
			}
			all[name] = records
		}
	}
	return serialize(cli.Format, stdout, all, func(w io.Writer) {
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, r := range all[name] {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Component, r.Version, r.URL)
			}
		}
	})
}

func executeComponentToGit(ctx context.Context, cli baseCLI, cat *catalog.Catalog, ctl *warehouse.Controller) error {
	st, err := store.InitGit(cli.ComponentToGitCLI.Dest, !cli.ComponentToGitCLI.NoBare)
	if err != nil {
		return err
	}
	return importer.ComponentRepository(ctx, cat, ctl, st, cli.ComponentToGitCLI.Component)
}

func executeReleaseToGit(ctx context.Context, cli baseCLI, cat *catalog.Catalog, ctl *warehouse.Controller) error {
	st, err := store.InitGit(cli.ReleaseToGitCLI.Dest, !cli.ReleaseToGitCLI.NoBare)
	if err != nil {
		return err
	}
	return importer.ReleaseRepository(ctx, cat, ctl, st, cli.ReleaseToGitCLI.Release)
}
