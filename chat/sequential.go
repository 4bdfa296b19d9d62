package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/agentchat/agent"
	"golang.org/x/sync/errgroup"
)

// ChatSpec 描述队列中的一次会话。
type ChatSpec struct {
	Initiator *agent.ConversableAgent
	Recipient *agent.ConversableAgent
	Message   string
	Options   []Option
}

func (s ChatSpec) validate(i int) error {
	if s.Initiator == nil || s.Recipient == nil {
		return fmt.Errorf("chat %d: initiator and recipient are required", i)
	}
	return nil
}

// InitiateChats 顺序执行一组会话。每次会话的总结会作为 carryover
// 传给后续所有会话,排在该会话自身配置的 carryover 之后。
// 任何一次会话失败立即中止,返回已完成的结果和指明第几段会话的错误。
func InitiateChats(ctx context.Context, specs []ChatSpec) ([]*Result, error) {
	results := make([]*Result, 0, len(specs))
	summaries := make([]string, 0, len(specs))

	for i, spec := range specs {
		if err := spec.validate(i); err != nil {
			return results, err
		}
		opts := make([]Option, 0, len(spec.Options)+2)
		opts = append(opts, WithMessage(spec.Message))
		opts = append(opts, spec.Options...)
		if len(summaries) > 0 {
			opts = append(opts, WithCarryover(summaries...))
		}

		r, err := InitiateChat(ctx, spec.Initiator, spec.Recipient, opts...)
		if err != nil {
			return results, fmt.Errorf("chat %d (%s -> %s): %w",
				i, spec.Initiator.Name(), spec.Recipient.Name(), err)
		}
		results = append(results, r)
		summaries = append(summaries, r.Summary)
	}
	return results, nil
}

// ParallelChatSpec 是带依赖关系的会话描述。
// Prerequisites 列出的会话全部完成后本会话才会启动,
// 其总结按列出顺序作为本会话的 carryover。
type ParallelChatSpec struct {
	ChatSpec
	ID            int
	Prerequisites []int
}

// InitiateChatsParallel 并发执行一组带依赖的会话,返回按 ID 索引的结果。
// 没有依赖关系的会话并行运行;共享 agent 的会话应当用 Prerequisites
// 串联起来,避免历史互相覆盖。
func InitiateChatsParallel(ctx context.Context, specs []ParallelChatSpec) (map[int]*Result, error) {
	byID := make(map[int]ParallelChatSpec, len(specs))
	for i, spec := range specs {
		if err := spec.validate(i); err != nil {
			return nil, err
		}
		if _, dup := byID[spec.ID]; dup {
			return nil, fmt.Errorf("chat id %d: duplicate", spec.ID)
		}
		byID[spec.ID] = spec
	}
	for _, spec := range specs {
		for _, p := range spec.Prerequisites {
			if _, ok := byID[p]; !ok {
				return nil, fmt.Errorf("chat id %d: unknown prerequisite %d", spec.ID, p)
			}
		}
	}
	if err := checkAcyclic(byID); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make(map[int]*Result, len(specs))
		done    = make(map[int]chan struct{}, len(specs))
	)
	for _, spec := range specs {
		done[spec.ID] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			carryover := make([]string, 0, len(spec.Prerequisites))
			for _, p := range spec.Prerequisites {
				select {
				case <-done[p]:
				case <-gctx.Done():
					return gctx.Err()
				}
				mu.Lock()
				carryover = append(carryover, results[p].Summary)
				mu.Unlock()
			}

			opts := make([]Option, 0, len(spec.Options)+2)
			opts = append(opts, WithMessage(spec.Message))
			opts = append(opts, spec.Options...)
			if len(carryover) > 0 {
				opts = append(opts, WithCarryover(carryover...))
			}

			r, err := InitiateChat(gctx, spec.Initiator, spec.Recipient, opts...)
			if err != nil {
				return fmt.Errorf("chat id %d (%s -> %s): %w",
					spec.ID, spec.Initiator.Name(), spec.Recipient.Name(), err)
			}

			mu.Lock()
			results[spec.ID] = r
			mu.Unlock()
			close(done[spec.ID])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// checkAcyclic 用 Kahn 拓扑排序校验依赖图无环。
func checkAcyclic(byID map[int]ParallelChatSpec) error {
	indegree := make(map[int]int, len(byID))
	dependents := make(map[int][]int, len(byID))
	for id := range byID {
		indegree[id] = 0
	}
	for id, spec := range byID {
		for _, p := range spec.Prerequisites {
			indegree[id]++
			dependents[p] = append(dependents[p], id)
		}
	}

	queue := make([]int, 0, len(byID))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(byID) {
		return fmt.Errorf("chat prerequisites contain a cycle")
	}
	return nil
}
