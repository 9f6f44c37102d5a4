package awsec2

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"

	"github.com/arclabs561/runctl/internal/checkpoint"
	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/interruption"
	"github.com/arclabs561/runctl/internal/provider"
	"github.com/arclabs561/runctl/internal/remote"
	"github.com/arclabs561/runctl/internal/retry"
	"github.com/arclabs561/runctl/internal/train"
	"github.com/arclabs561/runctl/internal/types"
)

// Logger is the narrow logging surface this package depends on,
// satisfied by internal/logger's ConsoleLogger/FileLogger; it is also
// handed to the retry executor as a retry.Logger.
type Logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// Provider implements provider.Provider against EC2. It never
// fabricates state (GetResourceStatus returns StateUnknown rather than
// guessing on a transient describe failure) and tags every resource it
// creates.
type Provider struct {
	ec2     EC2API
	pricing PricingAPI
	channel remote.Channel
	log     Logger
	region  string

	// Syncer, Checkpoints, CheckpointStore, and PollerFactory are
	// optional training-controller dependencies forwarded into every
	// train.Controller this provider builds. A Provider constructed
	// without them still launches and runs jobs; it just skips
	// code-sync, checkpoint mirroring, and interruption monitoring
	// respectively.
	Syncer          train.Syncer
	Checkpoints     *checkpoint.Manager
	CheckpointStore checkpoint.Store
	PollerFactory   func(resourceID string) interruption.Poller

	mu          sync.Mutex
	controllers map[string]*train.Controller
	jobs        map[string]jobRef
}

type jobRef struct {
	resourceID string
	jobID      string
	job        types.TrainingJob
}

var _ provider.Provider = (*Provider)(nil)

// New builds an EC2-backed Provider. channel is the remote command
// channel used by Train/Monitor; it is typically an ssmchannel.Channel
// wired against the same AWS config.
func New(ec2Client EC2API, pricingClient PricingAPI, channel remote.Channel, log Logger, region string) *Provider {
	return &Provider{
		ec2:         ec2Client,
		pricing:     pricingClient,
		channel:     channel,
		log:         log,
		region:      region,
		controllers: make(map[string]*train.Controller),
		jobs:        make(map[string]jobRef),
	}
}

// CreateResource launches a single EC2 instance, tagged with
// tool:created=true, tool:project, tool:session plus any
// caller-supplied tags. Retries transient EC2 API failures.
func (p *Provider) CreateResource(ctx context.Context, instanceType string, opts provider.CreateOptions) (types.ResourceID, error) {
	tagSpec := ec2types.TagSpecification{
		ResourceType: ec2types.ResourceTypeInstance,
		Tags:         buildTags(opts),
	}

	input := &ec2.RunInstancesInput{
		InstanceType:      ec2types.InstanceType(instanceType),
		MinCount:          aws.Int32(1),
		MaxCount:          aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{tagSpec},
	}
	if opts.IAMProfile != "" {
		input.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{Name: aws.String(opts.IAMProfile)}
	}
	if opts.Spot {
		marketOpts := &ec2types.InstanceMarketOptionsRequest{
			MarketType: ec2types.MarketTypeSpot,
			SpotOptions: &ec2types.SpotMarketOptions{
				SpotInstanceType: ec2types.SpotInstanceTypeOneTime,
			},
		}
		if opts.SpotMaxPrice > 0 {
			marketOpts.SpotOptions.MaxPrice = aws.String(fmt.Sprintf("%.4f", opts.SpotMaxPrice))
		}
		input.InstanceMarketOptions = marketOpts
	}

	out, err := retry.Execute(ctx, retry.DefaultCloudConfig(), p.log, "ec2:run_instances", func(ctx context.Context) (*ec2.RunInstancesOutput, error) {
		o, rerr := p.ec2.RunInstances(ctx, input)
		if rerr != nil {
			return nil, errs.CloudProvider("aws", "run_instances failed", rerr)
		}
		return o, nil
	})
	if err != nil {
		return "", err
	}
	if len(out.Instances) == 0 {
		return "", errs.CloudProvider("aws", "run_instances returned no instances", nil)
	}
	return types.ResourceID(aws.ToString(out.Instances[0].InstanceId)), nil
}

func buildTags(opts provider.CreateOptions) []ec2types.Tag {
	merged := map[string]string{"tool:created": "true"}
	if opts.Project != "" {
		merged["tool:project"] = opts.Project
	}
	if opts.Session != "" {
		merged["tool:session"] = opts.Session
	}
	for k, v := range opts.Tags {
		merged[k] = v
	}
	tags := make([]ec2types.Tag, 0, len(merged))
	for k, v := range merged {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return tags
}

// GetResourceStatus describes a single instance. On a transient API
// failure it returns StateUnknown rather than a fabricated guess.
func (p *Provider) GetResourceStatus(ctx context.Context, id types.ResourceID) (types.ResourceStatus, error) {
	out, err := p.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{string(id)},
	})
	if err != nil {
		p.log.Warnf("describe_instances failed for %s, reporting unknown state: %v", id, err)
		return types.ResourceStatus{ID: id, Provider: "aws", State: types.StateUnknown}, errs.CloudProvider("aws", "describe_instances failed", err)
	}
	inst, ok := findInstance(out, string(id))
	if !ok {
		return types.ResourceStatus{}, errs.ResourceNotFound("instance", string(id))
	}
	return instanceToStatus(inst), nil
}

func findInstance(out *ec2.DescribeInstancesOutput, id string) (ec2types.Instance, bool) {
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if aws.ToString(inst.InstanceId) == id {
				return inst, true
			}
		}
	}
	return ec2types.Instance{}, false
}

func instanceToStatus(inst ec2types.Instance) types.ResourceStatus {
	state := types.StateUnknown
	var reason string
	if inst.State != nil {
		state = NormalizeState(string(inst.State.Name))
	}
	reason = aws.ToString(inst.StateTransitionReason)
	if (state == types.StateStopped || state == types.StateTerminated) && IsSpotInterruption(reason) {
		state = types.StateInterrupted
	}

	var launch *time.Time
	if inst.LaunchTime != nil {
		t := *inst.LaunchTime
		launch = &t
	}

	tags := make(map[string]string, len(inst.Tags))
	for _, t := range inst.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}

	var endpoint string
	if inst.PublicIpAddress != nil {
		endpoint = aws.ToString(inst.PublicIpAddress)
	}

	var interrupt *types.InterruptionDetail
	if state == types.StateInterrupted {
		interrupt = &types.InterruptionDetail{CheckpointSaved: tags["runctl:checkpoint-saved"] == "true"}
	}

	return types.ResourceStatus{
		ID:             types.ResourceID(aws.ToString(inst.InstanceId)),
		Provider:       "aws",
		InstanceType:   string(inst.InstanceType),
		State:          state,
		Interruption:   interrupt,
		LaunchTime:     launch,
		PublicEndpoint: endpoint,
		Tags:           tags,
	}
}

// ListResources paginates DescribeInstances to completion before
// returning, filtered by tool:project / tags.
func (p *Provider) ListResources(ctx context.Context, filters provider.ListFilters) ([]types.ResourceStatus, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:tool:created"), Values: []string{"true"}},
		},
	}
	if filters.Project != "" {
		input.Filters = append(input.Filters, ec2types.Filter{
			Name: aws.String("tag:tool:project"), Values: []string{filters.Project},
		})
	}
	for k, v := range filters.Tags {
		input.Filters = append(input.Filters, ec2types.Filter{
			Name: aws.String("tag:" + k), Values: []string{v},
		})
	}

	var out []types.ResourceStatus
	paginator := ec2.NewDescribeInstancesPaginator(&ec2Paginator{api: p.ec2}, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errs.CloudProvider("aws", "describe_instances pagination failed", err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				out = append(out, instanceToStatus(inst))
			}
		}
	}
	return out, nil
}

// ec2Paginator wraps the narrowed EC2API interface as the
// ec2.DescribeInstancesAPIClient that ec2.NewDescribeInstancesPaginator
// takes, so pagination works against the narrowed interface used in
// tests.
type ec2Paginator struct {
	api EC2API
}

func (e *ec2Paginator) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return e.api.DescribeInstances(ctx, params, optFns...)
}

func (p *Provider) Start(ctx context.Context, id types.ResourceID) error {
	_, err := retry.Execute(ctx, retry.DefaultCloudConfig(), p.log, "ec2:start_instances", func(ctx context.Context) (struct{}, error) {
		_, serr := p.ec2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{string(id)}})
		if serr != nil {
			return struct{}{}, errs.CloudProvider("aws", "start_instances failed", serr)
		}
		return struct{}{}, nil
	})
	return err
}

func (p *Provider) Stop(ctx context.Context, id types.ResourceID) error {
	_, err := retry.Execute(ctx, retry.DefaultCloudConfig(), p.log, "ec2:stop_instances", func(ctx context.Context) (struct{}, error) {
		_, serr := p.ec2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{string(id)}})
		if serr != nil {
			return struct{}{}, errs.CloudProvider("aws", "stop_instances failed", serr)
		}
		return struct{}{}, nil
	})
	return err
}

// Terminate refuses an instance tagged tool:protected=true unless force
// is true, as defense in depth behind the safe-cleanup gate. With force
// it tags the instance as force-terminated (audit trail) before
// issuing TerminateInstances.
func (p *Provider) Terminate(ctx context.Context, id types.ResourceID, force bool) error {
	if !force {
		status, err := p.GetResourceStatus(ctx, id)
		if err != nil {
			return err
		}
		if status.Tags["tool:protected"] == "true" {
			return errs.Cleanup("resource is protected")
		}
	}
	if force {
		_, _ = p.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{string(id)},
			Tags:      []ec2types.Tag{{Key: aws.String("runctl:force-terminated"), Value: aws.String("true")}},
		})
	}
	_, err := retry.Execute(ctx, retry.DefaultCloudConfig(), p.log, "ec2:terminate_instances", func(ctx context.Context) (struct{}, error) {
		_, terr := p.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{string(id)}})
		if terr != nil {
			return struct{}{}, errs.CloudProvider("aws", "terminate_instances failed", terr)
		}
		return struct{}{}, nil
	})
	return err
}

// Train wires this provider's remote channel (and, if configured, its
// syncer/checkpoint manager/interruption poller) into a fresh
// train.Controller and launches the job. The returned JobHandle
// identifies the job for Wait/Monitor/Download.
func (p *Provider) Train(ctx context.Context, id types.ResourceID, job types.TrainingJob) (provider.JobHandle, error) {
	ctrl := train.NewController(p.channel, p.log)
	ctrl.Syncer = p.Syncer
	ctrl.Checkpoints = p.Checkpoints
	ctrl.CheckpointStore = p.CheckpointStore
	ctrl.PollerFactory = p.PollerFactory

	jobID, err := ctrl.Launch(ctx, string(id), job)
	if err != nil {
		return provider.JobHandle{}, err
	}

	p.mu.Lock()
	p.controllers[jobID] = ctrl
	p.jobs[jobID] = jobRef{resourceID: string(id), jobID: jobID, job: job}
	p.mu.Unlock()

	return provider.JobHandle{ResourceID: id, JobID: jobID}, nil
}

// Wait supervises the job through its tail/poll/react-to-interruption
// sequence, and returns its terminal JobResult.
func (p *Provider) Wait(ctx context.Context, handle provider.JobHandle) (types.JobResult, error) {
	p.mu.Lock()
	ctrl, ok := p.controllers[handle.JobID]
	ref := p.jobs[handle.JobID]
	p.mu.Unlock()
	if !ok {
		return types.JobResult{}, errs.ResourceNotFound("job", handle.JobID)
	}
	result := ctrl.Supervise(ctx, ref.resourceID, ref.jobID, ref.job, nil)
	return result, result.Err
}

// Monitor tails the remote training log via the command channel. With
// follow=false the channel is drained once and closed.
func (p *Provider) Monitor(ctx context.Context, id types.ResourceID, follow bool) (<-chan provider.LogLine, error) {
	lines, err := p.channel.Tail(ctx, string(id), follow)
	if err != nil {
		return nil, err
	}
	out := make(chan provider.LogLine)
	go func() {
		defer close(out)
		for l := range lines {
			select {
			case out <- provider.LogLine{Text: l.Text, Timestamp: l.Timestamp}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) Download(ctx context.Context, id types.ResourceID, remotePath, localPath string) error {
	return p.channel.Download(ctx, string(id), remotePath, localPath)
}

// EstimateCost looks up the on-demand price from the Pricing API.
// Unknown instance types return NaN and log a warning rather than
// erroring, since cost estimation is advisory.
func (p *Provider) EstimateCost(ctx context.Context, instanceType string, hours float64) (float64, error) {
	out, err := p.pricing.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("instanceType"), Value: aws.String(instanceType)},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("regionCode"), Value: aws.String(p.region)},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("operatingSystem"), Value: aws.String("Linux")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("tenancy"), Value: aws.String("Shared")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("preInstalledSw"), Value: aws.String("NA")},
		},
		MaxResults: aws.Int32(1),
	})
	if err != nil || len(out.PriceList) == 0 {
		p.log.Warnf("no pricing data for instance type %s, returning NaN", instanceType)
		return math.NaN(), nil
	}
	perHour, ok := parseOnDemandPrice(out.PriceList[0])
	if !ok {
		p.log.Warnf("could not parse pricing payload for instance type %s, returning NaN", instanceType)
		return math.NaN(), nil
	}
	return perHour * hours, nil
}
