package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsSource    int64
	errorsBasket    int64
	warnsSource     int64
	warnsBasket     int64
	sourceFetches   int64
	basketCalcs     int64
	pricePublishes  int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "source") || strings.Contains(component, "proxy") {
		atomic.AddInt64(&warnsSource, 1)
	} else if strings.Contains(component, "basket") || strings.Contains(component, "aggregator") {
		atomic.AddInt64(&warnsBasket, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "source") || strings.Contains(component, "proxy") {
		atomic.AddInt64(&errorsSource, 1)
	} else if strings.Contains(component, "basket") || strings.Contains(component, "aggregator") {
		atomic.AddInt64(&errorsBasket, 1)
	}
}

// IncrementSourceFetch records one completed provider fetch of the given
// payload size.
func IncrementSourceFetch(size int) {
	atomic.AddInt64(&sourceFetches, 1)
	recordChannel("source_fetch", size)
}

// IncrementBasketCalculation records one basket price aggregation.
func IncrementBasketCalculation() {
	atomic.AddInt64(&basketCalcs, 1)
	recordChannel("basket_calc", 0)
}

// IncrementPricePublish records one price handed to the publishing
// collaborator.
func IncrementPricePublish(size int) {
	atomic.AddInt64(&pricePublishes, 1)
	recordChannel("price_publish", size)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and throughput statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_source":   atomic.LoadInt64(&errorsSource),
		"errors_basket":   atomic.LoadInt64(&errorsBasket),
		"warns_source":    atomic.LoadInt64(&warnsSource),
		"warns_basket":    atomic.LoadInt64(&warnsBasket),
		"source_fetches":  atomic.LoadInt64(&sourceFetches),
		"basket_calcs":    atomic.LoadInt64(&basketCalcs),
		"price_publishes": atomic.LoadInt64(&pricePublishes),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"channels":        channelData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-ErrorsSource"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_source"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-ErrorsBasket"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_basket"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-WarnsSource"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_source"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-WarnsBasket"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_basket"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-SourceFetches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["source_fetches"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-BasketCalcs"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["basket_calcs"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-PricePublishes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["price_publishes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Basketflow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Basketflow-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Basketflow-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
