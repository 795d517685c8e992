// Package dispatch 把入站更新按聊天串行、跨聊天并行地交给协程池处理
package dispatch

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/weibaohui/insurebot/internal/service/bot"
	"k8s.io/klog/v2"
)

var ErrDispatcherStopped = errors.New("dispatcher is stopped")

// Processor 处理单条消息，通常是 *bot.Service
type Processor interface {
	ProcessMessage(ctx context.Context, msg bot.InboundMessage) error
}

// chatQueue 单个聊天的待处理消息，FIFO
type chatQueue struct {
	messages *list.List
	running  bool
}

type Dispatcher struct {
	pool      *ants.Pool
	processor Processor
	timeout   time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	mu      sync.Mutex
	queues  map[int64]*chatQueue
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher timeout 为单条更新的处理上限，<=0 表示不限制
func NewDispatcher(workers int, timeout time.Duration, processor Processor) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		pool:      pool,
		processor: processor,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[int64]*chatQueue),
	}, nil
}

// Submit 入队一条消息；同一聊天的消息按提交顺序逐条处理。
// 协程池满时会阻塞等待空闲 worker，等待期间不持有 d.mu
func (d *Dispatcher) Submit(msg bot.InboundMessage) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}

	q, ok := d.queues[msg.ChatID]
	if !ok {
		q = &chatQueue{messages: list.New()}
		d.queues[msg.ChatID] = q
	}
	elem := q.messages.PushBack(msg)

	if q.running {
		klog.V(6).Infof("消息排队等待: chatID=%d, pending=%d", msg.ChatID, q.messages.Len())
		d.mu.Unlock()
		return nil
	}

	q.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	chatID := msg.ChatID
	if err := d.pool.Submit(func() { d.drain(chatID) }); err != nil {
		d.rollback(chatID, q, elem)
		klog.Errorf("提交更新到协程池失败: chatID=%d, error=%v", chatID, err)
		return fmt.Errorf("submit update for chat %d: %w", chatID, err)
	}
	return nil
}

// rollback 撤销一次失败的提交。等待期间排在后面的消息没有 worker 处理，一并丢弃
func (d *Dispatcher) rollback(chatID int64, q *chatQueue, elem *list.Element) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q.messages.Remove(elem)
	if n := q.messages.Len(); n > 0 {
		klog.Warningf("提交失败，丢弃排队中的消息: chatID=%d, count=%d", chatID, n)
		q.messages.Init()
	}
	q.running = false
	if d.queues[chatID] == q {
		delete(d.queues, chatID)
	}
	d.wg.Done()
}

// drain 依次处理某个聊天队列中的消息，处理完后释放该队列
func (d *Dispatcher) drain(chatID int64) {
	defer d.wg.Done()
	for {
		msg, ok := d.next(chatID)
		if !ok {
			return
		}
		d.process(msg)
	}
}

func (d *Dispatcher) next(chatID int64) (bot.InboundMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[chatID]
	if q == nil {
		return bot.InboundMessage{}, false
	}
	if d.ctx.Err() != nil && q.messages.Len() > 0 {
		klog.Warningf("停止中，丢弃未处理的消息: chatID=%d, count=%d", chatID, q.messages.Len())
		q.messages.Init()
	}
	front := q.messages.Front()
	if front == nil {
		delete(d.queues, chatID)
		return bot.InboundMessage{}, false
	}
	q.messages.Remove(front)
	return front.Value.(bot.InboundMessage), true
}

func (d *Dispatcher) process(msg bot.InboundMessage) {
	ctx := d.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(d.ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("处理更新 panic: chatID=%d, panic=%v\n%s", msg.ChatID, r, debug.Stack())
		}
	}()

	start := time.Now()
	if err := d.processor.ProcessMessage(ctx, msg); err != nil {
		klog.Errorf("处理更新失败: chatID=%d, error=%v", msg.ChatID, err)
		return
	}
	klog.V(6).Infof("更新处理完成: chatID=%d, cost=%v", msg.ChatID, time.Since(start))
}

// Pending 某个聊天尚未开始处理的消息数
func (d *Dispatcher) Pending(chatID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q := d.queues[chatID]; q != nil {
		return q.messages.Len()
	}
	return 0
}

// Stop 拒绝新消息，取消进行中的处理并等待协程退出
func (d *Dispatcher) Stop(timeout time.Duration) error {
	var err error
	d.stopOnce.Do(func() {
		klog.V(6).Infof("Dispatcher stopping...")

		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		d.cancel()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			klog.Warningf("Timeout after %v: some updates are still running", timeout)
		}

		if err = d.pool.ReleaseTimeout(timeout); err != nil {
			klog.Warningf("ants pool release failed: %v", err)
		}
		klog.V(6).Infof("Dispatcher stopped")
	})
	return err
}
