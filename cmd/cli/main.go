package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minaorangina/easyplayer"
	"github.com/minaorangina/easyplayer/config"
	"github.com/minaorangina/easyplayer/entity"
	"github.com/minaorangina/easyplayer/tick"
	"github.com/sirupsen/logrus"
)

const usage = `commands:
  join <name> [team]               connect a player
  team <user_id> [cs|tf]           show a player's team name
  shift <user_id> <prop> <delta> [ms]
                                   shift a property, reverting after ms
  cancel <n>                       cancel pending revert n
  show [user_id]                   list players or show one
  tick [n]                         advance n ticks (default 1)
  quit`

// repl drives a sandbox by hand; game time only moves on "tick"
type repl struct {
	out        io.Writer
	store      *entity.InMemoryStore
	dispatcher *tick.Dispatcher
	env        easyplayer.Env
	world      config.World
	pending    map[int]easyplayer.Cancellable
	next       int
}

func main() {
	worldPath := flag.String("world", "./configs/world.yaml", "world settings file")
	rate := flag.Int("rate", tick.DefaultRate, "ticks per second of game time")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetLevel(logrus.WarnLevel)

	world, err := config.LoadWorld(*worldPath)
	if err != nil {
		log.WithError(err).Fatal("could not load world")
	}

	r := newREPL(os.Stdout, world, tick.IntervalFromRate(*rate), log)
	r.run(os.Stdin)
}

func newREPL(out io.Writer, world config.World, interval time.Duration, log logrus.FieldLogger) *repl {
	r := &repl{
		out:     out,
		world:   world,
		pending: map[int]easyplayer.Cancellable{},
	}
	r.store = entity.NewInMemoryStore(entity.StoreOpts{
		MaxPlayers: world.MaxPlayers,
		Attributes: world.Attributes,
		Observer: func(c entity.Change) {
			fmt.Fprintf(r.out, "  [%s] #%d %s: %d -> %d\n", r.dispatcher.Now(), c.Index, c.Property, c.Old, c.New)
		},
	})
	r.dispatcher = tick.NewDispatcher(tick.DispatcherOpts{Interval: interval, Logger: log})
	r.env = easyplayer.Env{
		Registry:  r.store,
		Scheduler: easyplayer.NewTickScheduler(r.dispatcher),
	}
	return r
}

func (r *repl) run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(r.out, usage)
	fmt.Fprint(r.out, "> ")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if fields[0] == "quit" || fields[0] == "exit" {
				return
			}
			if err := r.exec(fields[0], fields[1:]); err != nil {
				fmt.Fprintf(r.out, "error: %s\n", err)
			}
		}
		fmt.Fprint(r.out, "> ")
	}
}

func (r *repl) exec(cmd string, args []string) error {
	switch cmd {
	case "join":
		if len(args) < 1 {
			return fmt.Errorf("usage: join <name> [team]")
		}
		team := r.world.DefaultTeam
		if len(args) > 1 {
			var err error
			if team, err = strconv.Atoi(args[1]); err != nil {
				return err
			}
		}
		e, err := r.store.Connect(args[0], team)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s joined as user %d in slot %d\n", e.Name(), e.UserID(), e.Index())

	case "team":
		p, err := r.player(args)
		if err != nil {
			return err
		}
		mode := r.world.GameMode()
		if len(args) > 1 {
			if mode, err = easyplayer.ParseMode(args[1]); err != nil {
				return err
			}
		}
		name, err := p.TeamName(mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s team: %s\n", mode, name)

	case "shift":
		if len(args) < 3 {
			return fmt.Errorf("usage: shift <user_id> <prop> <delta> [ms]")
		}
		p, err := r.player(args)
		if err != nil {
			return err
		}
		delta, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		if len(args) < 4 {
			return p.ShiftProperty(args[1], delta)
		}
		ms, err := strconv.Atoi(args[3])
		if err != nil {
			return err
		}
		c, err := p.ShiftPropertyFor(args[1], delta, time.Duration(ms)*time.Millisecond)
		if err != nil {
			return err
		}
		r.next++
		r.pending[r.next] = c
		fmt.Fprintf(r.out, "revert %d pending\n", r.next)

	case "cancel":
		if len(args) < 1 {
			return fmt.Errorf("usage: cancel <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		c, ok := r.pending[n]
		delete(r.pending, n)
		if !ok || !c.Cancel() {
			return fmt.Errorf("revert %d already fired or unknown", n)
		}
		fmt.Fprintf(r.out, "revert %d cancelled\n", n)

	case "show":
		if len(args) == 0 {
			for _, e := range r.store.Entities() {
				fmt.Fprintf(r.out, "#%d user %d %s team %d\n", e.Index(), e.UserID(), e.Name(), e.Team())
			}
			return nil
		}
		userID, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		e, err := r.store.FindByUserID(userID)
		if err != nil {
			return err
		}
		for _, name := range e.PropertyNames() {
			v, _ := e.Property(name)
			fmt.Fprintf(r.out, "  %s = %d\n", name, v)
		}

	case "tick":
		n := 1
		if len(args) > 0 {
			var err error
			if n, err = strconv.Atoi(args[0]); err != nil {
				return err
			}
		}
		for i := 0; i < n; i++ {
			r.dispatcher.Tick()
		}
		fmt.Fprintf(r.out, "game time %s, %d pending\n", r.dispatcher.Now(), r.dispatcher.Pending())

	case "help":
		fmt.Fprintln(r.out, usage)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	return nil
}

func (r *repl) player(args []string) (*easyplayer.Player, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("missing user ID")
	}
	userID, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, err
	}
	return r.env.FromUserID(userID)
}
