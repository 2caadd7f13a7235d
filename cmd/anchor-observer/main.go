package main

import (
	// Go Internal Packages
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	// Local Packages
	custody "anchor-observer/clients/custody"
	platform "anchor-observer/clients/platform"
	config "anchor-observer/config"
	kafka "anchor-observer/kafka"
	ledger "anchor-observer/ledger"
	models "anchor-observer/models"
	memory "anchor-observer/repositories/memory"
	mongodb "anchor-observer/repositories/mongodb"
	redis "anchor-observer/repositories/redis"
	server "anchor-observer/server"
	actions "anchor-observer/services/actions"
	dispatcher "anchor-observer/services/dispatcher"
	events "anchor-observer/services/events"
	observer "anchor-observer/services/observer"
	processors "anchor-observer/services/processors"
	registry "anchor-observer/services/registry"
	trustline "anchor-observer/services/trustline"

	// External Packages
	"github.com/alecthomas/kingpin/v2"
	_ "github.com/jsternberg/zap-logfmt"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores groups the persistence of one store driver.
type stores struct {
	transactions []txStore
	cursors      observer.CursorStore
	accounts     registry.AccountStore
	trust        interface {
		actions.PendingTrustStore
		trustline.PendingTrustStore
	}
	dedup events.Deduper
	dlq   interface {
		dispatcher.DeadLetterQueue
		processors.DeadLetterQueue
	}
}

// txStore is one flavor's transaction store as both the dispatcher and the actions see it.
type txStore interface {
	actions.TransactionStore
	dispatcher.TransactionFinder
}

// LoadSecrets Loads the secret variables and overrides the config
func LoadSecrets(k config.Config) config.Config {
	if mongoURI := os.Getenv("MONGO_URI"); mongoURI != "" {
		k.Mongo.URI = mongoURI
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		k.Redis.Password = redisPassword
	}
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		k.Kafka.Brokers = strings.Split(kafkaBrokers, ",")
	}
	if custodyKey := os.Getenv("CUSTODY_API_KEY"); custodyKey != "" {
		k.Custody.APIKey = custodyKey
	}
	if isProdMode := os.Getenv("IS_PROD_MODE"); isProdMode != "" {
		k.IsProdMode = isProdMode == "true"
	}
	return k
}

// LoadConfig loads the default configuration and overrides it with the config file
// specified by the path defined in the config flag
func LoadConfig() *koanf.Koanf {
	configPathMsg := "Path to the application config file"
	configPath := kingpin.Flag("config", configPathMsg).Short('c').Default("config.yml").String()

	kingpin.Parse()
	k := koanf.New(".")
	_ = k.Load(rawbytes.Provider(config.DefaultConfig), yaml.Parser())
	if *configPath != "" {
		_ = k.Load(file.Provider(*configPath), yaml.Parser())
	}
	return k
}

func main() {
	k := LoadConfig()
	appKonf := config.Config{}

	// Unmarshalling config into struct
	err := k.Unmarshal("", &appKonf)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Update and Validate config before starting the server
	appKonf = LoadSecrets(appKonf)
	if err = appKonf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if !appKonf.IsProdMode {
		k.Print()
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(appKonf.Logger.Level))
	cfg.InitialFields = make(map[string]any)
	cfg.InitialFields["host"], _ = os.Hostname()
	cfg.InitialFields["service"] = appKonf.Application
	cfg.OutputPaths = []string{"stdout"}
	logger, _ := cfg.Build()
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStores(ctx, appKonf, logger)

	// Observed accounts
	accounts := registry.New(st.accounts, logger.Named("registry"))
	if err := accounts.Init(ctx); err != nil {
		logger.Fatal("cannot load observed accounts", zap.Error(err))
	}
	residential := appKonf.Accounts.Residential
	if appKonf.DepositInfo.DistributionAccount != "" {
		residential = append(residential, appKonf.DepositInfo.DistributionAccount)
	}
	for _, account := range residential {
		if err := accounts.Upsert(ctx, account, models.AccountResidential); err != nil {
			logger.Fatal("cannot watch residential account", zap.String("account", account), zap.Error(err))
		}
	}

	// Event publication
	var producer events.Producer = events.NewLogProducer(logger)
	if appKonf.Kafka.Events.Publish {
		eventProducer, err := kafka.NewEventProducer(&models.ProducerConfig{
			Brokers: appKonf.Kafka.Brokers,
			Topic:   appKonf.Kafka.Events.Topic,
		}, kprom.NewMetrics("anchor_events"), logger)
		if err != nil {
			logger.Fatal("cannot create event producer", zap.Error(err))
		}
		defer eventProducer.Close()
		producer = eventProducer
	}
	session := events.NewSession(producer, st.dedup, appKonf.Kafka.Events.DedupTTL, logger)

	// Ledger sources; the first one also answers the state machine's ledger queries
	sources := make([]*ledger.HorizonSource, len(appKonf.Ledger.Sources))
	for i, src := range appKonf.Ledger.Sources {
		sources[i] = ledger.NewHorizonSource(src.HorizonURL, src.RequestTimeout, logger.Named("horizon").With(zap.String("source", src.Name)))
	}

	var custodyClient actions.Custody
	if appKonf.Custody.Enabled {
		custodyClient = custody.NewClient(appKonf.Custody.URL, appKonf.Custody.APIKey, appKonf.Custody.Timeout)
	}

	actionStores := make([]actions.TransactionStore, len(st.transactions))
	finders := make([]dispatcher.TransactionFinder, len(st.transactions))
	for i, s := range st.transactions {
		actionStores[i] = s
		finders[i] = s
	}

	service := actions.New(actionStores, session, custodyClient, sources[0], accounts, st.trust, actions.Options{
		CustodyEnabled:      appKonf.Custody.Enabled,
		Generator:           appKonf.DepositInfo.Generator,
		DistributionAccount: appKonf.DepositInfo.DistributionAccount,
	}, logger)
	router := actions.NewRouter(service)

	var notifier dispatcher.PlatformNotifier = actions.NewNotifier(service)
	if appKonf.Platform.Mode == "http" {
		notifier = platform.NewClient(appKonf.Platform.URL, appKonf.Platform.Timeout)
	}
	payments := dispatcher.New(finders, notifier, sources[0], st.dlq, appKonf.Ledger.Sources[0].RequestTimeout, logger)

	g, gctx := errgroup.WithContext(ctx)

	observers := make([]server.Observer, len(sources))
	for i, src := range appKonf.Ledger.Sources {
		o := observer.New(src, sources[i], st.cursors, accounts, logger, payments)
		observers[i] = o
		g.Go(func() error { return o.Run(gctx) })
	}

	evictor := registry.NewEvictor(accounts, appKonf.Accounts.EvictionInterval, appKonf.Accounts.EvictionMaxAge, logger.Named("evictor"))
	g.Go(func() error { return evictor.Run(gctx) })

	if appKonf.Custody.Enabled {
		sweeper := trustline.NewSweeper(st.trust, sources[0], service, appKonf.Custody.TrustSweepInterval, appKonf.Custody.TrustTimeout, logger)
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	if appKonf.Kafka.Actions.Consume {
		processor := processors.NewActionProcessor(logger, router, st.dlq, st.dedup, appKonf.Kafka.Actions.DedupTTL)
		consumer, err := kafka.NewActionConsumer(&models.ConsumerConfig{
			Brokers:        appKonf.Kafka.Brokers,
			Name:           appKonf.Kafka.Actions.ConsumerName,
			Topic:          appKonf.Kafka.Actions.Topic,
			RecordsPerPoll: appKonf.Kafka.Actions.RecordsPerPoll,
		}, processor, kprom.NewMetrics("anchor_actions"), logger)
		if err != nil {
			logger.Fatal("cannot create action consumer", zap.Error(err))
		}
		g.Go(func() error { return consumer.Poll(gctx) })
	}

	srv := server.New(appKonf.Server.Address, observers, router, logger)
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("anchor observer stopped", zap.Error(err))
	}
	if err := accounts.Flush(context.Background()); err != nil {
		logger.Warn("failed to flush observed accounts", zap.Error(err))
	}
}

func openStores(ctx context.Context, appKonf config.Config, logger *zap.Logger) stores {
	protocols := []models.Protocol{models.ProtocolSEP31, models.ProtocolSEP24, models.ProtocolSEP6}

	if appKonf.Store.Driver == "memory" {
		st := stores{
			cursors:  memory.NewCursorRepository(),
			accounts: memory.NewAccountRepository(),
			trust:    memory.NewPendingTrustRepository(),
			dedup:    memory.NewDeduper(),
			dlq:      memory.NewDeadLetterQueue(),
		}
		for _, p := range protocols {
			st.transactions = append(st.transactions, memory.NewTxRepository(p))
		}
		return st
	}

	// Mongo Connection
	mongoClient, err := mongodb.Connect(ctx, appKonf.Mongo.URI, appKonf.Application)
	if err != nil {
		logger.Fatal("cannot create mongo client", zap.Error(err))
	}

	// Redis Connection
	redisClient, err := redis.Connect(ctx, appKonf.Redis.URI, appKonf.Redis.Password)
	if err != nil {
		logger.Fatal("cannot create redis client", zap.Error(err))
	}

	st := stores{
		cursors:  redis.NewCursorRepository(redisClient),
		accounts: redis.NewAccountRepository(redisClient, logger),
		trust:    redis.NewPendingTrustRepository(redisClient, logger),
		dedup:    redis.NewDeduper(redisClient),
		dlq:      redis.NewDeadLetterQueue(redisClient, logger),
	}
	for _, p := range protocols {
		repo := mongodb.NewTxRepository(mongoClient, appKonf.Mongo.Database, p)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("cannot create transaction indexes", zap.String("protocol", string(p)), zap.Error(err))
		}
		st.transactions = append(st.transactions, repo)
	}
	return st
}
