package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/nanocache/formats"
	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/dynamic"
	"github.com/arthur-debert/nanocache/nanocache/entity"
	"github.com/arthur-debert/nanocache/nanocache/future"
	"github.com/arthur-debert/nanocache/search"
	"github.com/arthur-debert/nanocache/types"
)

type recordCache = nanocache.PaginationCache[Record, string, search.Options]

func (cli *CLI) addCommands() {
	cli.rootCmd.AddCommand(
		cli.getCommand(),
		cli.searchCommand(),
		cli.pageCommand(),
		cli.persistCommand(),
		cli.showCommand(),
	)
}

// newCache builds the cache over src
func (cli *CLI) newCache(src *Source) (*recordCache, error) {
	opts, err := cli.options()
	if err != nil {
		return nil, err
	}
	matcher := search.NewMatcher[Record](search.MapFields)

	cache, err := nanocache.NewPaginationCache(nanocache.PaginationProps[Record, string, search.Options]{
		Props: dynamic.Props[Record, string, search.Options]{
			Props: entity.Props[Record, string, search.Options]{
				SelectID: src.ID,
				Search:   matcher.Match,
			},
			Load:       src.Load,
			SearchLoad: src.SearchLoad,
		},
		PageLoad: src.PageLoad,
	}, opts...)
	if err != nil {
		return nil, WrapError("create cache", err)
	}
	return cache, nil
}

func (cli *CLI) openCache() (*Source, *recordCache, error) {
	src, err := cli.openSource()
	if err != nil {
		return nil, nil, err
	}
	cache, err := cli.newCache(src)
	if err != nil {
		return nil, nil, err
	}
	return src, cache, nil
}

func (cli *CLI) render(w io.Writer, v any) error {
	if records, ok := v.([]Record); ok && records == nil {
		v = []Record{}
	}
	name := cli.viperInst.GetString("format")
	format, err := formats.Get(name)
	if err != nil {
		return NewValidationError("render output", "format", name, err.Error())
	}
	data, err := format.Marshal(v)
	if err != nil {
		return WrapError("render output", err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}

func (cli *CLI) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID...",
		Short: "Read records through the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cache, err := cli.openCache()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cli.waitTimeout())
			defer cancel()

			var loading []*future.Future[Record]
			for _, id := range args {
				if res := cache.Read(id); res.Loading != nil {
					loading = append(loading, res.Loading)
				}
			}
			future.All(ctx, loading...)
			if err := ctx.Err(); err != nil {
				return WrapError("load records", err)
			}

			var (
				records []Record
				missing []string
				errs    []error
			)
			for _, id := range args {
				res := cache.Read(id)
				switch res.State {
				case future.Success:
					records = append(records, res.Value)
				default:
					missing = append(missing, id)
					errs = append(errs, res.Err)
				}
			}
			if err := cli.render(cmd.OutOrStdout(), records); err != nil {
				return err
			}
			if len(missing) > 0 {
				return NewNotFoundError("get records", missing, errors.Join(errs...))
			}
			return nil
		},
	}
}

func (cli *CLI) searchCommand() *cobra.Command {
	var opts search.Options

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the source and cache the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Query = args[0]
			_, cache, err := cli.openCache()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cli.waitTimeout())
			defer cancel()

			found := future.Then(cache.LoadSearched(ctx, opts), func(_ []string, err error) ([]Record, error) {
				if err != nil {
					return nil, err
				}
				return cache.Search(opts), nil
			})
			records, err := found.Wait(ctx)
			if err != nil {
				return WrapError("search", err)
			}
			cli.logger.Info("search finished", "query", opts.Query, "results", len(records))
			return cli.render(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Fields, "field", nil, "Restrict the search to these fields (repeatable)")
	cmd.Flags().BoolVar(&opts.CaseSensitive, "case-sensitive", false, "Match case")
	cmd.Flags().BoolVar(&opts.ExactMatch, "exact", false, "Require whole-field matches")
	return cmd
}

func (cli *CLI) pageCommand() *cobra.Command {
	var size, page int

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Load records page by page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 1 {
				return NewValidationError("load page", "size", size, "must be at least 1")
			}
			if page < 0 {
				return NewValidationError("load page", "page", page, "must not be negative")
			}
			_, cache, err := cli.openCache()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cli.waitTimeout())
			defer cancel()

			// pages load contiguously, so reaching page N takes up to N+1 loads
			maxIndex := size * (page + 1)
			for cache.Len() < maxIndex {
				var lastLoaded *string
				lastIndex := cache.Len() - 1
				if all := cache.GetAll(); len(all) > 0 {
					id := cache.ID(all[len(all)-1])
					lastLoaded = &id
				}
				next := cache.Len() / size
				loaded, err := cache.LoadPaginated(ctx, size, next, lastLoaded, lastIndex).Wait(ctx)
				if err != nil {
					return WrapError("load page", err)
				}
				if len(loaded) < size {
					break
				}
			}

			records, err := cache.GetPaginated(size, page)
			if err != nil {
				return WrapError("load page", err)
			}
			return cli.render(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVar(&size, "size", 10, "Records per page")
	cmd.Flags().IntVar(&page, "page", 0, "Zero-based page number")
	return cmd
}

func (cli *CLI) persistCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "persist",
		Short: "Load every record of the source and save it to the storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, cache, err := cli.openCache()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			records, err := src.All(ctx)
			if err != nil {
				return WrapError("read source", err)
			}
			cache.SetLoaded(records)

			p, closeStorage, err := cli.openPersistent(ctx, cache, false)
			if err != nil {
				return err
			}
			defer closeStorage()

			if err := p.Persist(ctx); err != nil {
				return NewStorageError("persist records", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "persisted %d records under %s\n", cache.Len(), p.StorageKey())
			return err
		},
	}
}

func (cli *CLI) showCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the records saved in the storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := cli.options()
			if err != nil {
				return err
			}
			idField := cli.viperInst.GetString("id-field")
			cache, err := nanocache.NewEntityCache(nanocache.EntityProps[Record, string, search.Options]{
				SelectID: func(r Record) string { return fmt.Sprint(r[idField]) },
			}, opts...)
			if err != nil {
				return WrapError("create cache", err)
			}

			ctx := cmd.Context()
			p, closeStorage, err := cli.openPersistent(ctx, cache, true)
			if err != nil {
				return err
			}
			defer closeStorage()

			out := cmd.OutOrStdout()
			if err := cli.render(out, cache.GetAll()); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			sub := cache.Subscribe(func([]string) {
				if err := cli.render(out, cache.GetAll()); err != nil {
					cli.logger.Warn("render failed", "error", err)
				}
			}, types.EntitiesKey)
			defer sub.Unsubscribe()

			if err := p.Watch(ctx); err != nil {
				return NewStorageError("watch storage", err)
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print again whenever another process rewrites the storage")
	return cmd
}

// openPersistent opens the configured storage and attaches it to source
func (cli *CLI) openPersistent(ctx context.Context, source nanocache.PersistentSource[Record, string], loadOnInit bool) (*nanocache.Persistent[Record, string], func(), error) {
	opts, err := cli.options()
	if err != nil {
		return nil, nil, err
	}
	kv, err := nanocache.OpenStorage(cli.cfg)
	if err != nil {
		return nil, nil, NewStorageError("open storage", err)
	}
	closeStorage := func() {
		if err := kv.Close(); err != nil {
			cli.logger.Warn("closing storage failed", "error", err)
		}
	}

	p, err := nanocache.NewPersistent(ctx, nanocache.PersistentProps[Record, string]{
		Source:     source,
		Storage:    kv,
		Key:        cli.cfg.Storage.Key,
		LoadOnInit: loadOnInit,
	}, opts...)
	if err != nil {
		closeStorage()
		return nil, nil, NewStorageError("open storage", err)
	}
	return p, closeStorage, nil
}
