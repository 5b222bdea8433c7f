package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/richinsley/sysvipc"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usagef("%s: %v", fs.Name(), err)
	}
	return nil
}

// subcommand runs one of the verbs of a resource command.
func subcommand(a *app, resource string, args []string, verbs map[string]command) error {
	if len(args) < 1 {
		return usagef("%s: missing subcommand", resource)
	}
	run, ok := verbs[args[0]]
	if !ok {
		return usagef("%s: unknown subcommand %q", resource, args[0])
	}
	return run(a, args[1:])
}

func ftokCommand(a *app, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usagef("ftok: want PATH [ID]")
	}
	id := a.cfg.IPC.ProjectID
	if len(args) == 2 {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return usagef("ftok: bad id %q", args[1])
		}
		id = v
	}
	key, err := sysvipc.DeriveKey(a.backend, args[0], id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, key)
	return nil
}

func semCommand(a *app, args []string) error {
	return subcommand(a, "sem", args, map[string]command{
		"create": semCreate,
		"op":     semOp,
		"get":    semGet,
		"set":    semSet,
		"rm":     semRemove,
	})
}

func semCreate(a *app, args []string) error {
	fs := newFlagSet("sem create")
	keyFlag := fs.String("key", "", "key")
	n := fs.Int("n", 1, "number of semaphores")
	valuesFlag := fs.String("values", "", "initial values, comma separated")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	values, err := parseValues(*valuesFlag)
	if err != nil {
		return err
	}
	if values != nil && len(values) != *n {
		return usagef("sem create: %d values for %d semaphores", len(values), *n)
	}
	key, err := a.resolveKey(*keyFlag)
	if err != nil {
		return err
	}

	set, err := sysvipc.CreateSemaphoreSet(a.backend, key, *n, int(a.cfg.IPC.Perm), a.opts...)
	if err != nil {
		return err
	}
	if values != nil {
		if err := set.SetValues(values); err != nil {
			return err
		}
	}
	a.logger.Info("created semaphore set",
		zap.Int("semid", set.ID), zap.Stringer("key", key), zap.Int("count", *n))
	fmt.Fprintln(a.stdout, set.ID)
	return nil
}

// openSet parses the ID argument into a handle sized by the kernel.
func (a *app) openSet(idArg string) (*sysvipc.SemaphoreSet, error) {
	id, err := parseID(idArg)
	if err != nil {
		return nil, err
	}
	set := sysvipc.SemaphoreSetFromID(a.backend, id, 0, a.opts...)
	if set.Count, err = set.Len(); err != nil {
		return nil, err
	}
	return set, nil
}

func semOp(a *app, args []string) error {
	fs := newFlagSet("sem op")
	nowait := fs.Bool("nowait", false, "fail instead of waiting")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return usagef("sem op: want ID OP...")
	}
	ops, err := parseOps(fs.Args()[1:])
	if err != nil {
		return err
	}
	set, err := a.openSet(fs.Arg(0))
	if err != nil {
		return err
	}
	if *nowait {
		return set.TryApply(ops...)
	}
	return set.Apply(ops...)
}

func semGet(a *app, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usagef("sem get: want ID [NUM]")
	}
	set, err := a.openSet(args[0])
	if err != nil {
		return err
	}

	if len(args) == 2 {
		num, err := strconv.Atoi(args[1])
		if err != nil {
			return usagef("sem get: bad semaphore number %q", args[1])
		}
		v, err := set.Value(num)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, v)
		return nil
	}

	vals, err := set.Values()
	if err != nil {
		return err
	}
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = strconv.Itoa(int(v))
	}
	fmt.Fprintln(a.stdout, strings.Join(strs, " "))
	return nil
}

func semSet(a *app, args []string) error {
	if len(args) != 3 {
		return usagef("sem set: want ID NUM VALUE")
	}
	num, err := strconv.Atoi(args[1])
	if err != nil {
		return usagef("sem set: bad semaphore number %q", args[1])
	}
	v, err := strconv.Atoi(args[2])
	if err != nil {
		return usagef("sem set: bad value %q", args[2])
	}
	set, err := a.openSet(args[0])
	if err != nil {
		return err
	}
	return set.SetValue(num, v)
}

func semRemove(a *app, args []string) error {
	if len(args) != 1 {
		return usagef("sem rm: want ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	set := sysvipc.SemaphoreSetFromID(a.backend, id, 0, a.opts...)
	if err := set.Remove(); err != nil {
		return err
	}
	a.logger.Info("removed semaphore set", zap.Int("semid", set.ID))
	return nil
}

func shmCommand(a *app, args []string) error {
	return subcommand(a, "shm", args, map[string]command{
		"create": shmCreate,
		"stat":   shmStat,
		"rm":     shmRemove,
	})
}

func shmCreate(a *app, args []string) error {
	fs := newFlagSet("shm create")
	keyFlag := fs.String("key", "", "key")
	size := fs.Int("size", 0, "segment size in bytes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *size <= 0 {
		return usagef("shm create: -size is required")
	}
	key, err := a.resolveKey(*keyFlag)
	if err != nil {
		return err
	}
	seg, err := sysvipc.CreateSegment(a.backend, key, *size, int(a.cfg.IPC.Perm))
	if err != nil {
		return err
	}
	a.logger.Info("created segment",
		zap.Int("shmid", seg.ID), zap.Stringer("key", key), zap.Int("size", *size))
	fmt.Fprintln(a.stdout, seg.ID)
	return nil
}

func shmStat(a *app, args []string) error {
	if len(args) != 1 {
		return usagef("shm stat: want ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	info, err := sysvipc.SegmentFromID(a.backend, id).Stat()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "size=%d attached=%d cpid=%d lpid=%d mode=%#o\n",
		info.Size, info.Attached, info.CreatorPID, info.LastPID, info.Mode)
	return nil
}

func shmRemove(a *app, args []string) error {
	if len(args) != 1 {
		return usagef("shm rm: want ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := sysvipc.SegmentFromID(a.backend, id).Remove(); err != nil {
		return err
	}
	a.logger.Info("removed segment", zap.Int("shmid", id))
	return nil
}

func msgCommand(a *app, args []string) error {
	return subcommand(a, "msg", args, map[string]command{
		"create": msgCreate,
		"send":   msgSend,
		"recv":   msgReceive,
		"rm":     msgRemove,
	})
}

func msgCreate(a *app, args []string) error {
	fs := newFlagSet("msg create")
	keyFlag := fs.String("key", "", "key")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	key, err := a.resolveKey(*keyFlag)
	if err != nil {
		return err
	}
	q, err := sysvipc.CreateQueue(a.backend, key, int(a.cfg.IPC.Perm))
	if err != nil {
		return err
	}
	a.logger.Info("created message queue", zap.Int("msqid", q.ID), zap.Stringer("key", key))
	fmt.Fprintln(a.stdout, q.ID)
	return nil
}

func msgSend(a *app, args []string) error {
	fs := newFlagSet("msg send")
	nowait := fs.Bool("nowait", false, "fail instead of waiting when the queue is full")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return usagef("msg send: want ID TYPE TEXT")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}
	mtype, err := strconv.ParseInt(fs.Arg(1), 10, 64)
	if err != nil {
		return usagef("msg send: bad type %q", fs.Arg(1))
	}
	q := sysvipc.QueueFromID(a.backend, id)
	if *nowait {
		return q.TrySend(mtype, []byte(fs.Arg(2)))
	}
	return q.Send(mtype, []byte(fs.Arg(2)))
}

func msgReceive(a *app, args []string) error {
	fs := newFlagSet("msg recv")
	nowait := fs.Bool("nowait", false, "fail instead of waiting when no message matches")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return usagef("msg recv: want ID [TYPE]")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}
	var mtype int64
	if fs.NArg() == 2 {
		if mtype, err = strconv.ParseInt(fs.Arg(1), 10, 64); err != nil {
			return usagef("msg recv: bad type %q", fs.Arg(1))
		}
	}

	q := sysvipc.QueueFromID(a.backend, id)
	var got int64
	var data []byte
	if *nowait {
		got, data, err = q.TryReceive(mtype)
	} else {
		got, data, err = q.Receive(mtype)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%d %s\n", got, data)
	return nil
}

func msgRemove(a *app, args []string) error {
	if len(args) != 1 {
		return usagef("msg rm: want ID")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := sysvipc.QueueFromID(a.backend, id).Remove(); err != nil {
		return err
	}
	a.logger.Info("removed message queue", zap.Int("msqid", id))
	return nil
}
