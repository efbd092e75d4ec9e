package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"factoryline/internal/app"
	"factoryline/internal/config"
	"factoryline/internal/db"
	"factoryline/internal/domain"
	"factoryline/internal/engine"
	"factoryline/internal/migrate"
	"factoryline/internal/repo"
	"factoryline/internal/server"
	"factoryline/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Factoryline CLI",
	Long: `Factoryline runs the inventory ledger and order pipeline of a simulated
nine-workstation factory.
- Workspace: your .factoryline directory holding only the database; plant
  configs are stored in the DB and imported explicitly.
- Stock: every (workstation, item type, item) quantity, changed only
  through ledger adjustments so the history always adds up.
- Orders: customer orders classify into a fulfillment scenario on confirm
  and fan out into warehouse, production, control, workstation, assembly
  and supply orders as the work flows through the plant.
- Thresholds: low-stock rules with wildcards; 'fl stock alerts' evaluates
  them against current stock.
- Event log: diary of changes, view with 'fl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FACTORYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("plant", "", "plant id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("plant", rootCmd.PersistentFlags().Lookup("plant"))
}

func registerCommands() {
	rootCmd.AddCommand(plantCmd())
	rootCmd.AddCommand(stockCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(thresholdCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func plantCmd() *cobra.Command {
	plant := &cobra.Command{Use: "plant", Short: "Manage plants"}
	plant.AddCommand(plantCreateCmd())
	plant.AddCommand(plantListCmd())
	plant.AddCommand(plantShowCmd())
	plant.AddCommand(plantConfigCmd())
	return plant
}

func plantCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Initialize a plant",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, config.Default(id))
			p, err := e.InitPlant(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "plant id")
	cmd.Flags().StringVar(&name, "name", "", "plant name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func plantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPlants(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func plantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active plant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetPlant(ctx, e.Config.Plant.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func plantConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage plant config"}

	var importFile string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a plant config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(importFile)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertPlantConfig(ctx, cfg.Plant.ID, cfg); err != nil {
					return err
				}
				fmt.Printf("config imported for plant %s\n", cfg.Plant.ID)
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&importFile, "file", "", "YAML config file")
	_ = importCmd.MarkFlagRequired("file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored plant config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}

	var genID string
	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a default config YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault(genID))
			return nil
		},
	}
	genCmd.Flags().StringVar(&genID, "id", "plant-1", "plant id")

	cfgCmd.AddCommand(importCmd, showCmd, genCmd)
	return cfgCmd
}

func stockCmd() *cobra.Command {
	stock := &cobra.Command{Use: "stock", Short: "Inspect and adjust stock"}
	stock.AddCommand(stockListCmd())
	stock.AddCommand(stockAdjustCmd())
	stock.AddCommand(stockSetCmd())
	stock.AddCommand(stockAlertsCmd())
	return stock
}

func stockListCmd() *cobra.Command {
	var ws int
	var itemType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stock records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.StockFilters{ItemType: itemType}
				if ws > 0 {
					f.WorkstationID = &ws
				}
				items, err := e.Repo.ListStock(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"WS", "Type", "Item", "Qty", "Updated"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.WorkstationID, s.ItemType, s.ItemID, s.Quantity, s.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&ws, "workstation", 0, "workstation id filter")
	cmd.Flags().StringVar(&itemType, "item-type", "", "item type filter (PRODUCT, MODULE, PART)")
	return cmd
}

func stockAdjustCmd() *cobra.Command {
	var ws, itemID, delta int
	var itemType, reason, orderRef, notes string
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Apply a signed stock adjustment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.Adjust(ctx, engine.AdjustOptions{
					WorkstationID: ws,
					ItemType:      itemType,
					ItemID:        itemID,
					Delta:         delta,
					ReasonCode:    reason,
					OrderRef:      orderRef,
					Notes:         notes,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().IntVar(&ws, "workstation", 0, "workstation id (1..9)")
	cmd.Flags().StringVar(&itemType, "item-type", "", "PRODUCT, MODULE or PART")
	cmd.Flags().IntVar(&itemID, "item", 0, "item id")
	cmd.Flags().IntVar(&delta, "delta", 0, "signed quantity change")
	cmd.Flags().StringVar(&reason, "reason", "", "reason code (default ADJUSTMENT)")
	cmd.Flags().StringVar(&orderRef, "order-ref", "", "order number reference")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("workstation")
	_ = cmd.MarkFlagRequired("item-type")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("delta")
	return cmd
}

func stockSetCmd() *cobra.Command {
	var ws, itemID, quantity int
	var itemType string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set an absolute stock level, recorded as ADMIN_RESET",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, entry, err := e.SetStockLevel(ctx, ws, itemType, itemID, quantity, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"record": rec, "entry": entry})
			})
		},
	}
	cmd.Flags().IntVar(&ws, "workstation", 0, "workstation id (1..9)")
	cmd.Flags().StringVar(&itemType, "item-type", "", "PRODUCT, MODULE or PART")
	cmd.Flags().IntVar(&itemID, "item", 0, "item id")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "target quantity")
	_ = cmd.MarkFlagRequired("workstation")
	_ = cmd.MarkFlagRequired("item-type")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func stockAlertsCmd() *cobra.Command {
	var ws int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate low-stock alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var filter *int
				if ws > 0 {
					filter = &ws
				}
				alerts, err := e.EvaluateThresholds(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(alerts)
				}
				if len(alerts) == 0 {
					fmt.Println("no low-stock alerts")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"WS", "Type", "Item", "Qty", "Threshold", "Deficit"})
				for _, a := range alerts {
					tw.AppendRow(table.Row{a.WorkstationID, a.ItemType, a.ItemID, a.Quantity, a.Threshold, a.Deficit})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&ws, "workstation", 0, "workstation id filter")
	return cmd
}

func ledgerCmd() *cobra.Command {
	ledger := &cobra.Command{Use: "ledger", Short: "Inspect the stock ledger"}
	var ws, itemID, limit int
	var itemType string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.LedgerFilters{ItemType: itemType, Limit: limit}
				if ws > 0 {
					f.WorkstationID = &ws
				}
				if itemID > 0 {
					f.ItemID = &itemID
				}
				entries, err := e.History(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "WS", "Type", "Item", "Delta", "Balance", "Reason", "Order", "At"})
				for _, en := range entries {
					tw.AppendRow(table.Row{en.ID, en.WorkstationID, en.ItemType, en.ItemID, en.Delta, en.BalanceAfter, en.ReasonCode, en.OrderRef, en.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&ws, "workstation", 0, "workstation id filter")
	listCmd.Flags().StringVar(&itemType, "item-type", "", "item type filter")
	listCmd.Flags().IntVar(&itemID, "item", 0, "item id filter")
	listCmd.Flags().IntVar(&limit, "limit", 50, "max entries")

	var recentN int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Recent(ctx, recentN)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	recentCmd.Flags().IntVar(&recentN, "n", 20, "number of entries")

	ledger.AddCommand(listCmd, recentCmd)
	return ledger
}

func thresholdCmd() *cobra.Command {
	threshold := &cobra.Command{Use: "threshold", Short: "Manage low-stock thresholds"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListThresholds(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}

	var ws, itemID, value int
	var itemType string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Create or update a threshold; omit workstation or item for a wildcard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item := engine.ThresholdUpsert{ItemType: itemType, Threshold: value}
				if ws > 0 {
					item.WorkstationID = &ws
				}
				if itemID > 0 {
					item.ItemID = &itemID
				}
				saved, err := e.UpsertThresholds(ctx, []engine.ThresholdUpsert{item}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(saved[0])
			})
		},
	}
	setCmd.Flags().IntVar(&ws, "workstation", 0, "workstation id, 0 for any")
	setCmd.Flags().StringVar(&itemType, "item-type", "", "PRODUCT, MODULE or PART")
	setCmd.Flags().IntVar(&itemID, "item", 0, "item id, 0 for any")
	setCmd.Flags().IntVar(&value, "threshold", 0, "alert below this quantity")
	_ = setCmd.MarkFlagRequired("item-type")
	_ = setCmd.MarkFlagRequired("threshold")

	var deleteID int64
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteThreshold(ctx, deleteID, viper.GetString("actor-id"))
			})
		},
	}
	deleteCmd.Flags().Int64Var(&deleteID, "id", 0, "threshold id")
	_ = deleteCmd.MarkFlagRequired("id")

	threshold.AddCommand(listCmd, setCmd, deleteCmd)
	return threshold
}

func orderCmd() *cobra.Command {
	order := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
		Long: `Orders move through family-specific state machines. Customer orders
classify on confirm; the other families are created by the pipeline or by
hand here. Lines are given as TYPE:ITEM:QTY, e.g. --line PRODUCT:1:5.`,
	}
	order.AddCommand(orderListCmd())
	order.AddCommand(orderShowCmd())
	order.AddCommand(orderScheduleCmd())
	order.AddCommand(orderCreateCmd())
	order.AddCommand(orderActionCmds()...)
	return order
}

func parseLines(raw []string) ([]engine.LineInput, error) {
	lines := make([]engine.LineInput, 0, len(raw))
	for _, s := range raw {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid line %q, want TYPE:ITEM:QTY", s)
		}
		itemID, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid item id in %q", s)
		}
		qty, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q", s)
		}
		lines = append(lines, engine.LineInput{ItemType: strings.ToUpper(parts[0]), ItemID: itemID, Quantity: qty})
	}
	return lines, nil
}

func orderListCmd() *cobra.Command {
	var orderType, status, parentID string
	var ws, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, urgent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.OrderFilters{Type: orderType, Status: status, ParentID: parentID, Limit: limit}
				if ws > 0 {
					f.WorkstationID = &ws
				}
				items, err := e.ListOrders(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Number", "Type", "Status", "Priority", "Scenario", "WS", "Created"})
				for _, o := range items {
					wsCol := ""
					if o.WorkstationID != nil {
						wsCol = strconv.Itoa(*o.WorkstationID)
					}
					tw.AppendRow(table.Row{o.Number, o.Type, o.Status, o.Priority, o.Scenario, wsCol, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orderType, "type", "", "order family filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent order id filter")
	cmd.Flags().IntVar(&ws, "workstation", 0, "workstation id filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max orders")
	return cmd
}

func orderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show one order with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func orderScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <order-id>",
		Short: "Show the stored schedule of a production order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSchedule(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func orderCreateCmd() *cobra.Command {
	var family, priority, notes string
	var ws int
	var rawLines []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseLines(rawLines)
			if err != nil {
				return err
			}
			actor := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var o domain.Order
				switch family {
				case domain.OrderCustomer:
					o, err = e.CreateCustomerOrder(ctx, priority, actor, notes, lines)
				case domain.OrderWarehouse:
					o, err = e.CreateWarehouseOrder(ctx, priority, actor, notes, lines)
				case domain.OrderProduction:
					o, err = e.CreateProductionOrder(ctx, priority, actor, notes, lines)
				case domain.OrderProductionControl, domain.OrderAssemblyControl:
					o, err = e.CreateControlOrder(ctx, family, priority, ws, actor, notes, lines)
				case domain.OrderFinalAssembly:
					o, err = e.CreateFinalAssemblyOrder(ctx, priority, actor, notes, lines)
				case domain.OrderSupply:
					o, err = e.CreateSupplyOrder(ctx, priority, ws, actor, notes, lines)
				default:
					return fmt.Errorf("invalid order family %q", family)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&family, "family", domain.OrderCustomer, "order family")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, NORMAL, HIGH or URGENT")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().IntVar(&ws, "workstation", 0, "workstation id (control and supply orders)")
	cmd.Flags().StringArrayVar(&rawLines, "line", nil, "order line TYPE:ITEM:QTY (repeatable)")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}

type orderAction struct {
	use   string
	short string
	fn    func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error)
}

func orderActionCmds() []*cobra.Command {
	actions := []orderAction{
		{"confirm <order-id>", "Confirm an order (classifies customer and warehouse orders)", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			o, err := e.GetOrder(ctx, id)
			if err != nil {
				return o, err
			}
			switch o.Type {
			case domain.OrderCustomer:
				return e.ConfirmCustomerOrder(ctx, id, actor)
			case domain.OrderWarehouse:
				return e.ConfirmWarehouseOrder(ctx, id, actor)
			case domain.OrderProduction:
				return e.ConfirmProductionOrder(ctx, id, actor)
			case domain.OrderFinalAssembly:
				return e.ConfirmFinalAssemblyOrder(ctx, id, actor)
			}
			return o, fmt.Errorf("%s orders have no confirm step", o.Type)
		}},
		{"fulfill <order-id>", "Fulfill an order from stock", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			o, err := e.GetOrder(ctx, id)
			if err != nil {
				return o, err
			}
			switch o.Type {
			case domain.OrderCustomer:
				return e.FulfillCustomerOrder(ctx, id, actor)
			case domain.OrderWarehouse:
				return e.FulfillWarehouseOrder(ctx, id, actor)
			case domain.OrderSupply:
				return e.FulfillSupplyOrder(ctx, id, actor)
			}
			return o, fmt.Errorf("%s orders have no fulfill step", o.Type)
		}},
		{"complete <order-id>", "Complete an order", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			o, err := e.GetOrder(ctx, id)
			if err != nil {
				return o, err
			}
			switch o.Type {
			case domain.OrderCustomer:
				return e.CompleteCustomerOrder(ctx, id, actor)
			case domain.OrderProductionControl, domain.OrderAssemblyControl:
				return e.CompleteControlOrder(ctx, id, actor)
			case domain.OrderWorkstation:
				return e.CompleteWorkstationOrder(ctx, id, actor)
			case domain.OrderFinalAssembly:
				return e.CompleteFinalAssemblyOrder(ctx, id, actor)
			}
			return o, fmt.Errorf("%s orders have no complete step", o.Type)
		}},
		{"cancel <order-id>", "Cancel an order", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			o, err := e.GetOrder(ctx, id)
			if err != nil {
				return o, err
			}
			switch o.Type {
			case domain.OrderCustomer:
				return e.CancelCustomerOrder(ctx, id, actor)
			case domain.OrderProduction:
				return e.CancelProductionOrder(ctx, id, actor)
			}
			return o, fmt.Errorf("%s orders have no cancel step", o.Type)
		}},
		{"start <order-id>", "Start work on an order", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			o, err := e.GetOrder(ctx, id)
			if err != nil {
				return o, err
			}
			switch o.Type {
			case domain.OrderProductionControl, domain.OrderAssemblyControl:
				return e.StartControlOrder(ctx, id, actor)
			case domain.OrderWorkstation:
				return e.StartWorkstationOrder(ctx, id, actor)
			case domain.OrderFinalAssembly:
				return e.StartFinalAssemblyOrder(ctx, id, actor)
			}
			return o, fmt.Errorf("%s orders have no start step", o.Type)
		}},
		{"halt <order-id>", "Halt running work", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			o, err := e.GetOrder(ctx, id)
			if err != nil {
				return o, err
			}
			switch o.Type {
			case domain.OrderProductionControl, domain.OrderAssemblyControl:
				return e.HaltControlOrder(ctx, id, actor)
			case domain.OrderWorkstation:
				return e.HaltWorkstationOrder(ctx, id, actor)
			}
			return o, fmt.Errorf("%s orders have no halt step", o.Type)
		}},
		{"resume <order-id>", "Resume halted work", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			o, err := e.GetOrder(ctx, id)
			if err != nil {
				return o, err
			}
			switch o.Type {
			case domain.OrderProductionControl, domain.OrderAssemblyControl:
				return e.ResumeControlOrder(ctx, id, actor)
			case domain.OrderWorkstation:
				return e.ResumeWorkstationOrder(ctx, id, actor)
			}
			return o, fmt.Errorf("%s orders have no resume step", o.Type)
		}},
		{"assign <order-id>", "Assign a control order", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			return e.AssignControlOrder(ctx, id, actor)
		}},
		{"abandon <order-id>", "Abandon a control order", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			return e.AbandonControlOrder(ctx, id, actor)
		}},
		{"schedule-production <order-id>", "Mark a production order ready for dispatch", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			return e.ScheduleProductionOrder(ctx, id, actor)
		}},
		{"dispatch <order-id>", "Dispatch a production order to its workstations", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			return e.DispatchProductionOrder(ctx, id, actor)
		}},
		{"submit <order-id>", "Submit finished assembly to the plant warehouse", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			return e.SubmitFinalAssemblyOrder(ctx, id, actor)
		}},
		{"approve <order-id>", "Approve a supply order", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			return e.ApproveSupplyOrder(ctx, id, actor)
		}},
		{"reject <order-id>", "Reject a supply order", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Order, error) {
			return e.RejectSupplyOrder(ctx, id, actor)
		}},
	}

	cmds := make([]*cobra.Command, 0, len(actions)+1)
	for _, a := range actions {
		action := a
		cmds = append(cmds, &cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					o, err := action.fn(ctx, e, args[0], viper.GetString("actor-id"))
					if err != nil {
						return err
					}
					return printJSONOrTable(o)
				})
			},
		})
	}
	cmds = append(cmds, orderSupplyRequestCmd())
	return cmds
}

func orderSupplyRequestCmd() *cobra.Command {
	var rawLines []string
	cmd := &cobra.Command{
		Use:   "request-supply <control-order-id>",
		Short: "Request parts supply for a control order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseLines(rawLines)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.RequestSupply(ctx, args[0], viper.GetString("actor-id"), lines)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringArrayVar(&rawLines, "line", nil, "supply line PART:ITEM:QTY (repeatable)")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var n int
	var evtType, entityKind, entityID string
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Plant.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tailCmd.Flags().IntVar(&n, "n", 20, "number of events")
	tailCmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	tailCmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	tailCmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	logRoot.AddCommand(tailCmd)
	return logRoot
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, pretty bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolvePlantAndConfig(cmd.Context(), viper.GetString("plant"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Pretty: pretty, Level: os.Getenv("FACTORYLINE_LOG_LEVEL")})
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv("FACTORYLINE_JWT_SECRET"),
				AllowActorHeader: allowActorHeader,
				Logger:           log,
			}
			if keys := os.Getenv("FACTORYLINE_API_KEYS"); keys != "" {
				authCfg.APIKeys = parseAPIKeys(keys)
			}
			if authCfg.JWTSecret == "" && len(authCfg.APIKeys) == 0 && !allowActorHeader {
				return fmt.Errorf("configure FACTORYLINE_JWT_SECRET or FACTORYLINE_API_KEYS, or pass --allow-actor-header for local use")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving Factoryline API")
			fmt.Printf("Serving Factoryline API on http://%s%s (Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept a bare X-Actor-Id header (local use)")
	cmd.Flags().BoolVar(&pretty, "pretty-logs", false, "human-readable log output")
	return cmd
}

func tokenCmd() *cobra.Command {
	var actor string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API (requires FACTORYLINE_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("FACTORYLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("FACTORYLINE_JWT_SECRET is not set")
			}
			now := time.Now().UTC()
			claims := jwt.MapClaims{
				"sub": actor,
				"iat": now.Unix(),
				"exp": now.Add(ttl).Unix(),
			}
			if len(roles) > 0 {
				claims["roles"] = roles
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "local-user", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// parseAPIKeys parses "key=actor,key2=actor2" from the environment.
func parseAPIKeys(raw string) map[string]string {
	keys := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			keys[parts[0]] = parts[1]
		}
	}
	return keys
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolvePlantAndConfig(ctx, viper.GetString("plant"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
