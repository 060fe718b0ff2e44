package kafka

import (
	"context"
	"fmt"
	"time"

	"reservations/internal/domain/queue"

	"github.com/segmentio/kafka-go"
)

// Inspector reports consumer-group lag on the live topic and the size of the
// dead-letter topic.
type Inspector struct {
	client   *kafka.Client
	topic    string
	dlqTopic string
	groupID  string
}

func NewInspector(brokers []string, topic, dlqTopic, groupID string) *Inspector {
	return &Inspector{
		client: &kafka.Client{
			Addr:    kafka.TCP(brokers...),
			Timeout: 10 * time.Second,
		},
		topic:    topic,
		dlqTopic: dlqTopic,
		groupID:  groupID,
	}
}

func (i *Inspector) Depths(ctx context.Context) (queue.Depths, error) {
	d := queue.Depths{Transport: "kafka"}

	live, err := i.offsets(ctx, i.topic)
	if err != nil {
		return d, err
	}
	committed, err := i.committed(ctx, live)
	if err != nil {
		return d, err
	}
	d.Live = lag(live, committed)

	dead, err := i.offsets(ctx, i.dlqTopic)
	if err != nil {
		return d, err
	}
	d.DeadLetter = lag(dead, nil)

	return d, nil
}

func (i *Inspector) offsets(ctx context.Context, topic string) ([]kafka.PartitionOffsets, error) {
	meta, err := i.client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", topic, err)
	}

	var reqs []kafka.OffsetRequest
	for _, t := range meta.Topics {
		if t.Name != topic {
			continue
		}
		if t.Error != nil {
			return nil, fmt.Errorf("metadata for %s: %w", topic, t.Error)
		}
		for _, p := range t.Partitions {
			reqs = append(reqs, kafka.FirstOffsetOf(p.ID), kafka.LastOffsetOf(p.ID))
		}
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	resp, err := i.client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{topic: reqs},
	})
	if err != nil {
		return nil, fmt.Errorf("list offsets for %s: %w", topic, err)
	}

	parts := resp.Topics[topic]
	for _, p := range parts {
		if p.Error != nil {
			return nil, fmt.Errorf("list offsets for %s/%d: %w", topic, p.Partition, p.Error)
		}
	}
	return parts, nil
}

func (i *Inspector) committed(ctx context.Context, parts []kafka.PartitionOffsets) (map[int]int64, error) {
	if len(parts) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.Partition)
	}

	resp, err := i.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: i.groupID,
		Topics:  map[string][]int{i.topic: ids},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch offsets for group %s: %w", i.groupID, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("fetch offsets for group %s: %w", i.groupID, resp.Error)
	}

	out := make(map[int]int64, len(ids))
	for _, p := range resp.Topics[i.topic] {
		out[p.Partition] = p.CommittedOffset
	}
	return out, nil
}

// lag sums, per partition, the messages between the committed offset (or the
// log start when nothing is committed) and the log end.
func lag(parts []kafka.PartitionOffsets, committed map[int]int64) int64 {
	var total int64
	for _, p := range parts {
		from := p.FirstOffset
		if c, ok := committed[p.Partition]; ok && c > from {
			from = c
		}
		if p.LastOffset > from {
			total += p.LastOffset - from
		}
	}
	return total
}
