package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// route 状态处理器及其出错后的回退状态
type route struct {
	handler  StateHandler
	recovery model.ConversationState
	apology  string
}

// Deps 构建状态机所需的协作者
type Deps struct {
	Transport    Transport
	Documents    DocumentExtractor
	Generator    TextGenerator
	PolicyWriter PolicyWriter

	Price     float64
	Currency  string
	AIWelcome bool

	// 以下可选，测试中用于固定输出
	Now          func() time.Time
	PolicyNumber func() string
}

// Machine 会话分发器：全局命令 -> 当前状态处理器 -> 迁移校验
type Machine struct {
	routes      map[model.ConversationState]route
	globals     []GlobalHandler
	transitions *statemachine.ConversationStateMachine
	transport   Transport
}

// NewMachine 一次性构建状态到处理器的映射
func NewMachine(deps Deps) *Machine {
	s := &states{
		transport:    deps.Transport,
		documents:    deps.Documents,
		generator:    deps.Generator,
		policyWriter: deps.PolicyWriter,
		price:        deps.Price,
		currency:     deps.Currency,
		aiWelcome:    deps.AIWelcome,
		now:          deps.Now,
		policyNumber: deps.PolicyNumber,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.policyNumber == nil {
		s.policyNumber = NewPolicyNumber
	}

	// Error 状态不注册处理器，只能通过 /reset 离开
	routes := map[model.ConversationState]route{
		model.StateEntry:              {StateHandlerFunc(s.entry), model.StateError, msgGenericError},
		model.StateWaitingIdentityDoc: {StateHandlerFunc(s.waitingIdentity), model.StateWaitingIdentityDoc, msgIdentityError},
		model.StateWaitingVehicleDoc:  {StateHandlerFunc(s.waitingVehicle), model.StateWaitingVehicleDoc, msgVehicleError},
		model.StateWaitingConfirm:     {StateHandlerFunc(s.waitingConfirmation), model.StateError, msgGenericError},
		model.StatePriceConfirmation:  {StateHandlerFunc(s.priceConfirmation), model.StateError, msgGenericError},
		model.StateCompleted:          {StateHandlerFunc(s.completed), model.StateCompleted, msgGenericError},
	}

	return &Machine{
		routes: routes,
		globals: []GlobalHandler{
			NewResetHandler(deps.Transport),
			NewQuestionHandler(deps.Transport, deps.Generator),
		},
		transitions: statemachine.NewConversationStateMachine(),
		transport:   deps.Transport,
	}
}

// Process 处理一条消息并返回会话的下一个状态；只有上下文取消时返回错误
func (m *Machine) Process(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	from := sess.State
	next, err := m.dispatch(ctx, sess, msg)
	if err != nil {
		return from, err
	}
	next = m.validate(from, next, sess)

	// 入口状态不停留：同一次更新内直接执行入口处理
	if next == model.StateEntry {
		sess.State = model.StateEntry
		next, err = m.runState(ctx, sess, msg)
		if err != nil {
			return from, err
		}
		next = m.validate(model.StateEntry, next, sess)
	}

	if err := ctx.Err(); err != nil {
		return from, err
	}
	return next, nil
}

func (m *Machine) dispatch(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	for _, g := range m.globals {
		handled, next, err := m.runGlobal(ctx, g, sess, msg)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			klog.Errorf("全局命令处理失败: handler=%s, chatID=%d, error=%v", g.Name(), sess.ChatID, err)
			continue
		}
		if handled {
			klog.V(6).Infof("全局命令已处理: handler=%s, chatID=%d, next=%s", g.Name(), sess.ChatID, next)
			return next, nil
		}
	}
	return m.runState(ctx, sess, msg)
}

func (m *Machine) runGlobal(ctx context.Context, g GlobalHandler, sess *model.Session, msg InboundMessage) (handled bool, next model.ConversationState, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("全局命令 panic: handler=%s, chatID=%d, panic=%v\n%s", g.Name(), sess.ChatID, r, debug.Stack())
			handled, next, err = false, sess.State, fmt.Errorf("global handler %s panicked: %v", g.Name(), r)
		}
	}()
	return g.HandleCommand(ctx, sess, msg)
}

func (m *Machine) runState(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	r, ok := m.routes[sess.State]
	if !ok {
		klog.Warningf("没有对应的状态处理器: chatID=%d, state=%q", sess.ChatID, sess.State)
		m.notify(ctx, sess.ChatID, msgUnknownState)
		return model.StateError, nil
	}

	next, err := m.safeHandle(ctx, r.handler, sess, msg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		klog.Errorf("状态处理失败: chatID=%d, state=%s, error=%v", sess.ChatID, sess.State, err)
		m.notify(ctx, sess.ChatID, r.apology)
		return r.recovery, nil
	}
	return next, nil
}

func (m *Machine) safeHandle(ctx context.Context, h StateHandler, sess *model.Session, msg InboundMessage) (next model.ConversationState, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("状态处理 panic: chatID=%d, state=%s, panic=%v\n%s", sess.ChatID, sess.State, r, debug.Stack())
			next, err = "", fmt.Errorf("state handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, sess, msg)
}

// validate 非法迁移视为路由错误，进入 Error
func (m *Machine) validate(from, to model.ConversationState, sess *model.Session) model.ConversationState {
	if from == to && !m.transitions.IsKnown(from) {
		return model.StateError
	}
	if !m.transitions.IsKnown(from) {
		// 未知状态只能去 Error 或被重置
		if to == model.StateError || to == model.StateEntry {
			return to
		}
		klog.Warningf("未知状态上的迁移被拒绝: chatID=%d, %s -> %s", sess.ChatID, from, to)
		return model.StateError
	}
	if err := m.transitions.Transition(from, to, sess.ChatID); err != nil {
		return model.StateError
	}
	return to
}

func (m *Machine) notify(ctx context.Context, chatID int64, text string) {
	if err := m.transport.SendText(ctx, chatID, text); err != nil {
		klog.Errorf("发送消息失败: chatID=%d, error=%v", chatID, err)
	}
}
